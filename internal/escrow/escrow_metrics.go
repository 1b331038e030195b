package escrow

import "github.com/prometheus/client_golang/prometheus"

var (
	escrowReservedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "escrow_reserved_total",
		Help:      "Total escrow tickets reserved.",
	})

	escrowReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "escrow_released_total",
		Help:      "Total escrow tickets released back to their owner.",
	})

	escrowSettledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "escrow_settled_total",
		Help:      "Total escrow tickets settled to a seller.",
	})

	escrowedAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "escrow_amount_vnd_total",
		Help:      "VND moved through escrow by operation.",
	}, []string{"op"})

	platformFeesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "platform_fees_vnd_total",
		Help:      "Platform fees collected on settlement, in VND.",
	})
)

func init() {
	prometheus.MustRegister(
		escrowReservedTotal,
		escrowReleasedTotal,
		escrowSettledTotal,
		escrowedAmountTotal,
		platformFeesTotal,
	)
}
