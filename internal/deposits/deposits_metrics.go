package deposits

import "github.com/prometheus/client_golang/prometheus"

var (
	depositsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "deposits_total",
		Help:      "Deposits by method and resulting status.",
	}, []string{"method", "status"})

	depositedAmountTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Name:      "deposited_vnd_total",
		Help:      "VND credited through confirmed deposits.",
	})
)

func init() {
	prometheus.MustRegister(depositsTotal, depositedAmountTotal)
}
