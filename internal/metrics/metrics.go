package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Transitions       *prometheus.CounterVec
	Sweeps            *prometheus.CounterVec
	SweepFailures     *prometheus.CounterVec
	Emails            *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hackathon_transitions_total", Help: "Lifecycle operations by outcome"},
			[]string{"operation", "outcome"},
		),
		Sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hackathon_sweeps_total", Help: "Scheduler sweeps run"},
			[]string{"sweep"},
		),
		SweepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hackathon_sweep_failures_total", Help: "Per-hackathon failures inside sweeps"},
			[]string{"sweep"},
		),
		Emails: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hackathon_emails_total", Help: "Notification emails by template and outcome"},
			[]string{"template", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hackathon_operation_duration_seconds",
				Help:    "Lifecycle operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(
		m.Transitions,
		m.Sweeps,
		m.SweepFailures,
		m.Emails,
		m.OperationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is exposed for tests that gather values directly.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one finished lifecycle operation.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveEmail(template string, ok bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	m.Emails.WithLabelValues(template, outcome).Inc()
}

func (m *Metrics) ObserveSweep(sweep string, failures int) {
	if m == nil {
		return
	}
	m.Sweeps.WithLabelValues(sweep).Inc()
	if failures > 0 {
		m.SweepFailures.WithLabelValues(sweep).Add(float64(failures))
	}
}
