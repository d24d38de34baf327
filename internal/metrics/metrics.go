// Package metrics defines the Prometheus instruments for answer runs.
//
// Metrics are registered against an explicit prometheus.Registerer so tests
// and multiple servers in one process never collide on the default registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llm_verify"

// Metrics holds all instruments recorded by the runner and session.
type Metrics struct {
	// AttemptsTotal counts model calls by outcome.
	// Labels: status (success, auth, transport, service, other)
	AttemptsTotal *prometheus.CounterVec

	// AttemptDuration measures model call latency.
	// Labels: model
	AttemptDuration *prometheus.HistogramVec

	// RunsTotal counts finished runs by terminal status.
	// Labels: status (completed, failed, superseded)
	RunsTotal *prometheus.CounterVec

	// AgreementRatio records agreementCount/totalAttempts for completed runs.
	AgreementRatio prometheus.Histogram

	// ActiveRuns is 1 while a run is in flight.
	ActiveRuns prometheus.Gauge
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total model attempts by outcome",
			},
			[]string{"status"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Model call latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total runs by terminal status",
			},
			[]string{"status"},
		),
		AgreementRatio: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agreement_ratio",
				Help:      "Share of attempts agreeing with the consensus answer",
				Buckets:   []float64{0.2, 0.34, 0.5, 0.67, 0.8, 1},
			},
		),
		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of runs currently in flight",
			},
		),
	}
}

// ObserveAttempt records one model call.
func (m *Metrics) ObserveAttempt(model, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.AttemptDuration.WithLabelValues(model).Observe(latency.Seconds())
	}
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records a terminal status and releases the in-flight gauge.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
}

// ObserveAgreement records the consensus share of a completed run.
func (m *Metrics) ObserveAgreement(agreement, total int) {
	if m == nil || total == 0 {
		return
	}
	m.AgreementRatio.Observe(float64(agreement) / float64(total))
}
