package primitives

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ValueSet writes every literal parameter into the context under the
// parameter's own name.
type ValueSet struct {
	logger *slog.Logger
}

func (s *ValueSet) PluginID() string { return "value.set" }

func (s *ValueSet) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Params) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "value.set needs at least one parameter")
	}
	for name, value := range def.Params {
		wc.Set(name, value)
	}
	s.logger.DebugContext(ctx, "values set", "count", len(def.Params))
	return nil
}

// ValueCompute evaluates an expr-lang expression over a snapshot of the
// context and stores the result.
type ValueCompute struct {
	logger *slog.Logger
	engine *expressions.ExprEngine
}

func (s *ValueCompute) PluginID() string { return "value.compute" }

func (s *ValueCompute) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	expression, err := engine.RequiredParamString(def, "expression")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "result")
	if err != nil {
		return err
	}

	result, err := s.engine.Evaluate(ctx, expression, wc.Snapshot())
	if err != nil {
		return err
	}
	wc.Set(outKey, result)

	s.logger.DebugContext(ctx, "value computed", "output", outKey)
	return nil
}
