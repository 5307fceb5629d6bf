package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks admission-control statistics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	LimiterErrors    prometheus.Counter
	DecisionDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratecell_requests_total",
				Help: "Total admission checks by outcome",
			},
			[]string{"outcome"},
		),
		LimiterErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratecell_limiter_errors_total",
				Help: "Total admission checks that failed with an error",
			},
		),
		DecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratecell_decision_duration_seconds",
				Help:    "Admission check duration in seconds, store round-trip included",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.LimiterErrors, m.DecisionDuration)
	return m
}

// RecordDecision records one completed admission check.
func (m *Metrics) RecordDecision(limited bool, elapsed time.Duration) {
	outcome := "allowed"
	if limited {
		outcome = "limited"
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.DecisionDuration.Observe(elapsed.Seconds())
}

// RecordError records an admission check that failed before producing a verdict.
func (m *Metrics) RecordError() {
	m.LimiterErrors.Inc()
}
