// Package metrics exposes Prometheus collectors for the agent's cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Recorder owns a private registry so several agents can run in one
// process (and in tests) without colliding on the default registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	phases          *prometheus.CounterVec
	toolExecutions  *prometheus.CounterVec
	receipts        prometheus.Counter
	publishFailures prometheus.Counter
}

// New creates a recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_cycles_total",
				Help: "Completed cycles by outcome.",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autopilot_cycle_duration_seconds",
				Help:    "Wall time of one cycle.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		phases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_phases_total",
				Help: "Phases run, by type.",
			},
			[]string{"type"},
		),
		toolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_tool_executions_total",
				Help: "Action invocations, by tool name.",
			},
			[]string{"tool"},
		),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_payment_receipts_total",
			Help: "Payment receipt hashes captured from HTTP responses.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_publish_failures_total",
			Help: "Activities that failed to publish.",
		}),
	}
	r.registry.MustRegister(
		r.cycles,
		r.cycleDuration,
		r.phases,
		r.toolExecutions,
		r.receipts,
		r.publishFailures,
	)
	return r
}

// ObserveCycle records one finished cycle.
func (r *Recorder) ObserveCycle(outcome string, d time.Duration) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// ObservePhase records a phase and the tools it called.
func (r *Recorder) ObservePhase(phaseType string, toolNames []string) {
	r.phases.WithLabelValues(phaseType).Inc()
	for _, name := range toolNames {
		r.toolExecutions.WithLabelValues(name).Inc()
	}
}

// ReceiptCaptured counts one payment receipt.
func (r *Recorder) ReceiptCaptured(string) {
	r.receipts.Inc()
}

// PublishFailed counts one failed publish.
func (r *Recorder) PublishFailed() {
	r.publishFailures.Inc()
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
