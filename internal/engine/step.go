// Package engine contains the step execution core: the Step contract, the
// plugin registry, binding resolution and the sequential workflow executor.
package engine

import (
	"context"
	"time"

	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Step is an executable unit of work within a workflow. Implementations are
// registered under their plugin id and invoked with the declarative step
// definition plus the run's shared context.
type Step interface {
	// PluginID returns the stable identifier steps are registered and
	// referenced under, e.g. "graphics.gpu.init".
	PluginID() string

	// Execute runs the step. Values for successors are written to wc; an
	// error aborts the workflow run.
	Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error
}

// Runner executes a list of step definitions against a shared context.
// Control-flow steps hold a Runner to execute their nested bodies.
type Runner interface {
	RunSteps(ctx context.Context, steps []schema.StepDefinition, wc *wfctx.Context) error
}

// RunRecorder persists run history events. Implementations must tolerate
// being called from a single goroutine per run.
type RunRecorder interface {
	RecordEvent(ctx context.Context, runID, eventType, stepID string, detail map[string]any) error
}

// Observer receives execution telemetry. The zero-value executor uses a
// no-op observer.
type Observer interface {
	StepExecuted(plugin string, duration time.Duration, err error)
	WorkflowExecuted(duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) StepExecuted(string, time.Duration, error) {}
func (nopObserver) WorkflowExecuted(time.Duration, error)     {}
