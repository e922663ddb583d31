package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

const namespace = "contractgate"

// Metrics holds all Prometheus metrics for the gate.
// It implements service.Recorder.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	DecisionsTotal    *prometheus.CounterVec
	NegotiationsTotal *prometheus.CounterVec
	SweepDeletedTotal *prometheus.CounterVec
	SweepErrorsTotal  *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Total policy decisions by pattern and outcome",
			},
			[]string{"pattern", "result", "reason"},
		),
		NegotiationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "negotiation_steps_total",
				Help:      "Total contract negotiation steps by outcome",
			},
			[]string{"step", "outcome"},
		),
		SweepDeletedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_deleted_total",
				Help:      "Items removed by enforcement sweeps",
			},
			[]string{"pass"},
		),
		SweepErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_errors_total",
				Help:      "Items an enforcement sweep failed to check or remove",
			},
			[]string{"pass"},
		),
		SweepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Enforcement sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pass"},
		),
	}
}

// RecordDecision counts one policy decision. Unclassified rules are
// labelled "none".
func (m *Metrics) RecordDecision(d usage.Decision) {
	pattern := string(d.Pattern)
	if pattern == "" {
		pattern = "none"
	}
	m.DecisionsTotal.WithLabelValues(pattern, d.Result(), string(d.Reason)).Inc()
}

// RecordNegotiation counts one negotiation step.
func (m *Metrics) RecordNegotiation(step, outcome string) {
	m.NegotiationsTotal.WithLabelValues(step, outcome).Inc()
}

// RecordSweep records one sweep pass.
func (m *Metrics) RecordSweep(pass string, deleted, failed int, elapsed time.Duration) {
	m.SweepDeletedTotal.WithLabelValues(pass).Add(float64(deleted))
	m.SweepErrorsTotal.WithLabelValues(pass).Add(float64(failed))
	m.SweepDuration.WithLabelValues(pass).Observe(elapsed.Seconds())
}

var _ service.Recorder = (*Metrics)(nil)
