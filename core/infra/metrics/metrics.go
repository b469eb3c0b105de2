package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkflowMetrics captures engine-level execution metrics.
type WorkflowMetrics interface {
	IncExecutionStarted(workflow string)
	IncExecutionFinished(workflow, status string)
	ObserveExecutionDuration(workflow string, durationSeconds float64)
	IncStepFinished(stepType, status string)
	AddFilesProcessed(workflow string, n int)
	SetRunsInFlight(n int)
}

// Noop implements WorkflowMetrics without emitting anything.
type Noop struct{}

func (Noop) IncExecutionStarted(string)               {}
func (Noop) IncExecutionFinished(string, string)      {}
func (Noop) ObserveExecutionDuration(string, float64) {}
func (Noop) IncStepFinished(string, string)           {}
func (Noop) AddFilesProcessed(string, int)            {}
func (Noop) SetRunsInFlight(int)                      {}

// Prom implements WorkflowMetrics backed by Prometheus collectors.
type Prom struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	steps    *prometheus.CounterVec
	files    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewProm registers the collectors on the default registry.
func NewProm(namespace string) *Prom {
	return NewPromWith(prometheus.DefaultRegisterer, namespace)
}

// NewPromWith registers the collectors on reg.
func NewPromWith(reg prometheus.Registerer, namespace string) *Prom {
	p := &Prom{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_started_total",
			Help:      "Workflow executions started by workflow name",
		}, []string{"workflow"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_finished_total",
			Help:      "Workflow executions finished by workflow name and status",
		}, []string{"workflow", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration by workflow name",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600, 1800},
		}, []string{"workflow"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_finished_total",
			Help:      "Workflow steps finished by step type and status",
		}, []string{"step_type", "status"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_files_processed_total",
			Help:      "Media files processed by workflow name",
		}, []string{"workflow"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_runs_in_flight",
			Help:      "Workflow executions currently holding a pool slot",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.started, p.finished, p.duration, p.steps, p.files, p.inFlight)
	}
	return p
}

func (p *Prom) IncExecutionStarted(workflow string) {
	p.started.WithLabelValues(workflow).Inc()
}

func (p *Prom) IncExecutionFinished(workflow, status string) {
	p.finished.WithLabelValues(workflow, status).Inc()
}

func (p *Prom) ObserveExecutionDuration(workflow string, durationSeconds float64) {
	p.duration.WithLabelValues(workflow).Observe(durationSeconds)
}

func (p *Prom) IncStepFinished(stepType, status string) {
	p.steps.WithLabelValues(stepType, status).Inc()
}

func (p *Prom) AddFilesProcessed(workflow string, n int) {
	if n <= 0 {
		return
	}
	p.files.WithLabelValues(workflow).Add(float64(n))
}

func (p *Prom) SetRunsInFlight(n int) {
	p.inFlight.Set(float64(n))
}

// Handler returns an HTTP handler for /metrics on the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
