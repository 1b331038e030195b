package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileLedgerDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meraki",
		Subsystem: "reconciliation",
		Name:      "ledger_drift_vnd",
		Help:      "Balances minus confirmed deposits in the last reconciliation run.",
	})

	reconcileEscrowDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meraki",
		Subsystem: "reconciliation",
		Name:      "escrow_drift_vnd",
		Help:      "Escrowed ledger balance minus held escrow tickets in the last reconciliation run.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meraki",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meraki",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileLedgerDrift,
		reconcileEscrowDrift,
		reconcileDuration,
		reconcileErrors,
	)
}
