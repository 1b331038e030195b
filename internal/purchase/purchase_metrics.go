package purchase

import "github.com/prometheus/client_golang/prometheus"

var purchasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "meraki",
	Name:      "purchases_total",
	Help:      "Purchase lifecycle events by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(purchasesTotal)
}
