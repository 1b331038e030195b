package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/merakimarket/meraki/internal/apperr"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meraki",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meraki",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger mutation latency in seconds, lock wait included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// Platform-wide sums, refreshed whenever Totals is read.
	balanceGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "meraki",
			Subsystem: "ledger",
			Name:      "balance_vnd",
			Help:      "Sum of user balances by kind (available, escrowed, deposited).",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, balanceGauge)
}

// observeOp starts timing op. The returned func records the outcome held
// in *errp when the operation returns.
func observeOp(op string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		opsTotal.WithLabelValues(op, outcome(*errp)).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDuplicateReference):
		return "duplicate"
	default:
		return "error"
	}
}

func recordTotals(t *Totals) {
	balanceGauge.WithLabelValues("available").Set(float64(t.Available))
	balanceGauge.WithLabelValues("escrowed").Set(float64(t.Escrowed))
	balanceGauge.WithLabelValues("deposited").Set(float64(t.Deposited))
}
