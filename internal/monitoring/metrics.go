// Package monitoring exposes Prometheus metrics and a JSON health snapshot
// for the verification pipeline.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/longbox-labs/entity-verify/internal/resilience"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	// Job outcomes by terminal state
	JobsTotal *prometheus.CounterVec

	// Field-level conflicts recorded during reconciliation
	ConflictsTotal prometheus.Counter

	// Adapter failures by source and error category
	AdapterFailures *prometheus.CounterVec

	// Adapter call latency by source
	AdapterLatency *prometheus.HistogramVec

	// Circuit breaker state per source (0 closed, 1 open, 2 half_open)
	BreakerState *prometheus.GaugeVec

	// Full reconciliation latency
	JobDuration prometheus.Histogram
}

// New creates a Metrics instance registered against reg. Tests pass an
// isolated prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_verify_jobs_total",
			Help: "Total verification jobs by outcome",
		}, []string{"outcome"}), // outcome: "completed", "failed", "skipped"

		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "entity_verify_conflicts_total",
			Help: "Total field-level conflicts recorded during reconciliation",
		}),

		AdapterFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_verify_adapter_failures_total",
			Help: "Total adapter failures by source and error category",
		}, []string{"source", "category"}),

		AdapterLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entity_verify_adapter_duration_seconds",
			Help:    "Duration of adapter fetches by source, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "entity_verify_breaker_state",
			Help: "Circuit breaker state per source (0 closed, 1 open, 2 half_open)",
		}, []string{"source"}),

		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "entity_verify_job_duration_seconds",
			Help:    "Duration of full entity reconciliation including adapter fan-out",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// IncJob records a terminal job outcome.
func (m *Metrics) IncJob(outcome string) {
	if m != nil {
		m.JobsTotal.WithLabelValues(outcome).Inc()
	}
}

// AddConflicts records field-level conflicts found in one reconciliation.
func (m *Metrics) AddConflicts(n int) {
	if m != nil && n > 0 {
		m.ConflictsTotal.Add(float64(n))
	}
}

// IncAdapterFailure records an adapter failure by error category.
func (m *Metrics) IncAdapterFailure(source, category string) {
	if m != nil {
		m.AdapterFailures.WithLabelValues(source, category).Inc()
	}
}

// ObserveAdapterLatency records the duration of one adapter fetch.
func (m *Metrics) ObserveAdapterLatency(source string, d time.Duration) {
	if m != nil {
		m.AdapterLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// SetBreakerState publishes a breaker's current state, given as the
// snapshot's string label.
func (m *Metrics) SetBreakerState(source, state string) {
	if m == nil {
		return
	}
	v := float64(resilience.CircuitClosed)
	switch state {
	case resilience.CircuitOpen.String():
		v = float64(resilience.CircuitOpen)
	case resilience.CircuitHalfOpen.String():
		v = float64(resilience.CircuitHalfOpen)
	}
	m.BreakerState.WithLabelValues(source).Set(v)
}

// ObserveJobDuration records the total reconciliation duration.
func (m *Metrics) ObserveJobDuration(d time.Duration) {
	if m != nil {
		m.JobDuration.Observe(d.Seconds())
	}
}
