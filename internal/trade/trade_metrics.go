package trade

import "github.com/prometheus/client_golang/prometheus"

var (
	offersProposedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "trade_offers_proposed_total",
		Help:      "Total trade offers proposed.",
	})

	offersConfirmedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "trade_confirmations_total",
		Help:      "Trade offer confirmations by role.",
	}, []string{"role"})

	offersClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "trade_offers_closed_total",
		Help:      "Trade offers closed without a trade, by final state.",
	}, []string{"state"})

	tradesCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "trades_completed_total",
		Help:      "Trades settled after both parties confirmed.",
	})
)

func init() {
	prometheus.MustRegister(
		offersProposedTotal,
		offersConfirmedTotal,
		offersClosedTotal,
		tradesCompletedTotal,
	)
}
