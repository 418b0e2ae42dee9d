// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const (
	OutcomeSuccess  = "success"
	OutcomeDeclined = "declined"
	OutcomeError    = "error"
)

var (
	// TransitionsTotal counts persisted transitions, e.g. {from="NEW", to="SUCCESS"}.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Persisted payment state transitions by source and target state",
		},
		[]string{"from", "to"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_operations_total",
			Help: "Payment service operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_operation_duration_seconds",
			Help:    "Payment service operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	AccountBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "account_balance",
			Help: "Current balance of the shared account",
		},
	)
)

// RecordOperation is called once at the end of every service operation.
func RecordOperation(operation, outcome string, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetAccountBalance(balance decimal.Decimal) {
	AccountBalance.Set(balance.InexactFloat64())
}
