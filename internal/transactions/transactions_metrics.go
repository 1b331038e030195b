package transactions

import "github.com/prometheus/client_golang/prometheus"

var transactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "meraki",
	Name:      "transactions_total",
	Help:      "Transactions recorded or transitioned, by type and resulting status.",
}, []string{"type", "status"})

func init() {
	prometheus.MustRegister(transactionsTotal)
}
