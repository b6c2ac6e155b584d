package control

import (
	"context"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// IfElse runs its Body when the condition holds, its Else otherwise.
type IfElse struct {
	runner engine.Runner
	cel    *expressions.CELEngine
}

func (s *IfElse) PluginID() string { return "control.if_else" }

func (s *IfElse) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Body) == 0 && len(def.Else) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "at least one branch is required")
	}

	ok, err := condition(ctx, s.cel, def, wc)
	if err != nil {
		return err
	}

	if ok {
		return s.runner.RunSteps(ctx, def.Body, wc)
	}
	return s.runner.RunSteps(ctx, def.Else, wc)
}
