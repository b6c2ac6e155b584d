package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/renderflow/engine/internal/engine"
)

var _ engine.Observer = (*Observer)(nil)

func TestStepExecutedCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)

	o.StepExecuted("graphics.frame.begin", time.Millisecond, nil)
	o.StepExecuted("graphics.frame.begin", time.Millisecond, nil)
	o.StepExecuted("graphics.frame.begin", time.Millisecond, errors.New("device lost"))

	assert.Equal(t, 2.0, testutil.ToFloat64(
		o.stepsTotal.WithLabelValues("graphics.frame.begin", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		o.stepsTotal.WithLabelValues("graphics.frame.begin", "error")))
}

func TestWorkflowExecutedCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)

	o.WorkflowExecuted(10*time.Millisecond, nil)
	o.WorkflowExecuted(10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(o.workflowsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.workflowsTotal.WithLabelValues("error")))
}
