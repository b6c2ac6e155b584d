// Package control implements the control-flow steps: branching, switching,
// bounded loops, iteration and error capture. Control steps never touch the
// GPU; they re-enter the executor through the Runner interface to execute
// their nested bodies.
package control

import (
	"context"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Steps returns all control-flow steps wired to the given runner and
// condition engine.
func Steps(runner engine.Runner, cel *expressions.CELEngine) []engine.Step {
	return []engine.Step{
		&IfElse{runner: runner, cel: cel},
		&Switch{runner: runner},
		&While{runner: runner, cel: cel},
		&ForEach{runner: runner},
		&TryCatch{runner: runner},
	}
}

// condition resolves a step's branch condition: either the "condition" param
// (a CEL expression over the context snapshot) or the "condition" input
// (a boolean context key). Exactly one must be present.
func condition(ctx context.Context, cel *expressions.CELEngine, def *schema.StepDefinition, wc *wfctx.Context) (bool, error) {
	if expr := engine.ParamString(def, "condition", ""); expr != "" {
		return cel.EvaluateBool(ctx, expr, wc.Snapshot())
	}
	if key, ok := engine.OptionalInputKey(def, "condition"); ok {
		v, err := wfctx.Get[bool](wc, key)
		if err != nil {
			return false, err
		}
		return v, nil
	}
	return false, schema.NewError(schema.ErrCodeValidation,
		"either a 'condition' param or a 'condition' input is required").
		WithStep(def.Label()).WithPlugin(def.Plugin)
}
