package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the throttle engine.
type Metrics struct {
	checks     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	repairs    prometheus.Counter
	storePhase *prometheus.HistogramVec
}

// NewMetrics creates and registers the engine's collectors on the default
// registry. Create at most one per process.
func NewMetrics() *Metrics {
	return &Metrics{
		checks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_checks_total",
				Help: "Total number of enforcement passes by scope and result",
			},
			[]string{"scope", "result"},
		),

		rejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_rejections_total",
				Help: "Total number of rejections by breached window",
			},
			[]string{"window"},
		),

		repairs: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throttle_expiry_repairs_total",
				Help: "Total number of counters repaired with a missing expiry",
			},
		),

		storePhase: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "throttle_store_phase_duration_seconds",
				Help:    "Counter store round-trip duration by pass phase",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
			[]string{"phase"},
		),
	}
}

// RecordCheck records the result of one enforcement pass.
func (m *Metrics) RecordCheck(scope, result string) {
	m.checks.WithLabelValues(scope, result).Inc()
}

// RecordRejection records which window was breached.
func (m *Metrics) RecordRejection(window string) {
	m.rejections.WithLabelValues(window).Inc()
}

// RecordRepair records one expiry repair.
func (m *Metrics) RecordRepair() {
	m.repairs.Inc()
}

// ObserveStorePhase records the duration of one store transaction.
func (m *Metrics) ObserveStorePhase(phase string, seconds float64) {
	m.storePhase.WithLabelValues(phase).Observe(seconds)
}
