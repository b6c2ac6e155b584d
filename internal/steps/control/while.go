package control

import (
	"context"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// defaultMaxIterations bounds loops whose workflow omits max_iterations.
const defaultMaxIterations = 10000

// While re-runs its Body while the condition holds. Loops are always
// bounded: max_iterations defaults to 10000, and exceeding the bound is an
// error rather than a silent stop.
type While struct {
	runner engine.Runner
	cel    *expressions.CELEngine
}

func (s *While) PluginID() string { return "control.while" }

func (s *While) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Body) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "while loop has an empty body")
	}

	limit := engine.ParamInt(def, "max_iterations", defaultMaxIterations)
	if limit <= 0 {
		limit = defaultMaxIterations
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "run cancelled").WithCause(err)
		}
		ok, err := condition(ctx, s.cel, def, wc)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if i >= limit {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"loop exceeded max_iterations (%d)", limit)
		}
		wc.Set(keys.LoopIteration, i)
		if err := s.runner.RunSteps(ctx, def.Body, wc); err != nil {
			return err
		}
	}
}
