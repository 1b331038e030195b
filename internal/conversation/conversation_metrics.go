package conversation

import "github.com/prometheus/client_golang/prometheus"

var messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "meraki",
	Name:      "messages_total",
	Help:      "Messages relayed, by kind.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(messagesTotal)
}
