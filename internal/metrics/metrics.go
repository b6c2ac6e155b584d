// Package metrics implements the executor's telemetry observer on
// Prometheus counters and histograms.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer counts step and workflow executions and tracks their latency.
// It satisfies the executor's Observer contract.
type Observer struct {
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	workflowsTotal   *prometheus.CounterVec
	workflowDuration prometheus.Histogram
}

// New registers the engine metrics on the given registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "renderflow_steps_total",
			Help: "Step executions by plugin id and result.",
		}, []string{"plugin", "result"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "renderflow_step_duration_seconds",
			Help:    "Step execution latency by plugin id.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"plugin"}),
		workflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "renderflow_workflows_total",
			Help: "Workflow runs by result.",
		}, []string{"result"}),
		workflowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "renderflow_workflow_duration_seconds",
			Help:    "Workflow run latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

func (o *Observer) StepExecuted(plugin string, duration time.Duration, err error) {
	o.stepsTotal.WithLabelValues(plugin, resultLabel(err)).Inc()
	o.stepDuration.WithLabelValues(plugin).Observe(duration.Seconds())
}

func (o *Observer) WorkflowExecuted(duration time.Duration, err error) {
	o.workflowsTotal.WithLabelValues(resultLabel(err)).Inc()
	o.workflowDuration.Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
