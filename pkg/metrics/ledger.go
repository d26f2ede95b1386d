package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks money-movement operations on project balances.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Committed ledger operations by type.",
	}, []string{"type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Rejected ledger operations by reason.",
	}, []string{"reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(operations, rejections, duration)
	return &LedgerMetrics{
		operations: operations,
		rejections: rejections,
		duration:   duration,
	}
}

// IncOperation counts a committed ledger operation of the given type.
func (l *LedgerMetrics) IncOperation(opType string) {
	if l == nil || l.operations == nil {
		return
	}
	l.operations.WithLabelValues(normalizeLabel(opType)).Inc()
}

// IncRejection counts a rejected operation by reason (e.g. insufficient_funds).
func (l *LedgerMetrics) IncRejection(reason string) {
	if l == nil || l.rejections == nil {
		return
	}
	l.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveDuration records how long a ledger operation took.
func (l *LedgerMetrics) ObserveDuration(opType string, duration time.Duration) {
	if l == nil || l.duration == nil {
		return
	}
	l.duration.WithLabelValues(normalizeLabel(opType)).Observe(duration.Seconds())
}
