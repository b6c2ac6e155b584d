package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/renderflow/engine/internal/logging"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Executor runs workflows sequentially with fail-fast semantics: steps
// execute in definition order and the first error aborts the run.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	recorder RunRecorder
	observer Observer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRecorder attaches a run history recorder.
func WithRecorder(r RunRecorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor creates an Executor over the given registry. A nil logger
// defaults to slog.Default().
func NewExecutor(registry *Registry, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry: registry,
		logger:   logger,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a workflow against a fresh correlation scope. It returns the
// generated run ID alongside the first error, if any.
func (e *Executor) Run(ctx context.Context, wf *schema.WorkflowDefinition, wc *wfctx.Context) (string, error) {
	runID := uuid.NewString()
	ctx = logging.WithWorkflowID(ctx, runID)

	start := time.Now()
	e.logger.InfoContext(ctx, "workflow started",
		slog.String("workflow", wf.Name),
		slog.Int("steps", len(wf.Steps)))
	e.record(ctx, runID, schema.EventWorkflowStarted, "", map[string]any{"workflow": wf.Name})

	err := e.RunSteps(ctx, wf.Steps, wc)
	elapsed := time.Since(start)
	e.observer.WorkflowExecuted(elapsed, err)

	if err != nil {
		e.logger.ErrorContext(ctx, "workflow failed",
			slog.String("workflow", wf.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		e.record(ctx, runID, schema.EventWorkflowFailed, "", map[string]any{"error": err.Error()})
		return runID, err
	}

	e.logger.InfoContext(ctx, "workflow completed",
		slog.String("workflow", wf.Name),
		slog.Duration("elapsed", elapsed))
	e.record(ctx, runID, schema.EventWorkflowCompleted, "", nil)
	return runID, nil
}

// RunSteps executes a step list in order, stopping at the first error.
// Control-flow steps call back into this method for their nested bodies.
func (e *Executor) RunSteps(ctx context.Context, steps []schema.StepDefinition, wc *wfctx.Context) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "run cancelled").WithCause(err)
		}
		if err := e.runStep(ctx, &steps[i], wc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	step, err := e.registry.Get(def.Plugin)
	if err != nil {
		return e.annotate(err, def)
	}

	stepCtx := logging.WithStepID(ctx, def.Label())
	e.logger.DebugContext(stepCtx, "step started", slog.String("plugin", def.Plugin))
	e.record(stepCtx, logging.WorkflowID(ctx), schema.EventStepStarted, def.Label(), nil)

	start := time.Now()
	err = step.Execute(stepCtx, def, wc)
	elapsed := time.Since(start)
	e.observer.StepExecuted(def.Plugin, elapsed, err)

	if err != nil {
		err = e.annotate(err, def)
		e.logger.ErrorContext(stepCtx, "step failed",
			slog.String("plugin", def.Plugin),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		e.record(stepCtx, logging.WorkflowID(ctx), schema.EventStepFailed, def.Label(),
			map[string]any{"error": err.Error()})
		return err
	}

	e.logger.DebugContext(stepCtx, "step completed",
		slog.String("plugin", def.Plugin),
		slog.Duration("elapsed", elapsed))
	e.record(stepCtx, logging.WorkflowID(ctx), schema.EventStepCompleted, def.Label(), nil)
	return nil
}

// annotate makes sure every surfaced error carries step identity.
func (e *Executor) annotate(err error, def *schema.StepDefinition) error {
	ee, ok := err.(*schema.EngineError)
	if !ok {
		return schema.NewError(schema.ErrCodeExecution, err.Error()).
			WithCause(err).WithStep(def.Label()).WithPlugin(def.Plugin)
	}
	if ee.StepID == "" {
		ee.StepID = def.Label()
	}
	if ee.Plugin == "" {
		ee.Plugin = def.Plugin
	}
	return ee
}

func (e *Executor) record(ctx context.Context, runID, eventType, stepID string, detail map[string]any) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordEvent(ctx, runID, eventType, stepID, detail); err != nil {
		e.logger.WarnContext(ctx, "run event not recorded",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
	}
}
