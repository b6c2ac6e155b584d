package control

import (
	"context"
	"errors"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// TryCatch runs its Body and, if any step of it fails, runs Else with the
// error description bound in the context. A handled failure does not fail the
// workflow; a failure inside Else does.
type TryCatch struct {
	runner engine.Runner
}

func (s *TryCatch) PluginID() string { return "control.try_catch" }

func (s *TryCatch) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Body) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "try_catch has an empty body")
	}

	err := s.runner.RunSteps(ctx, def.Body, wc)
	if err == nil {
		return nil
	}
	// Cancellation is not a step failure, the whole run is being torn down.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	errKey := engine.ParamString(def, "error_output", "error.message")
	wc.Set(errKey, err.Error())
	if len(def.Else) == 0 {
		return nil
	}
	return s.runner.RunSteps(ctx, def.Else, wc)
}
