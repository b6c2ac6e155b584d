package engine

import (
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// InputKey resolves the context key bound to a required input slot. Binding
// errors surface before the step touches any resource, so a misconfigured
// workflow fails without side effects.
func InputKey(def *schema.StepDefinition, slot string) (string, error) {
	key, ok := def.Inputs[slot]
	if !ok || key == "" {
		return "", schema.NewErrorf(schema.ErrCodeMissingBinding, "input %q is not bound", slot).
			WithStep(def.Label()).WithPlugin(def.Plugin)
	}
	return key, nil
}

// OptionalInputKey resolves the context key bound to an optional input slot.
func OptionalInputKey(def *schema.StepDefinition, slot string) (string, bool) {
	key, ok := def.Inputs[slot]
	return key, ok && key != ""
}

// OutputKey resolves the context key bound to a required output slot.
func OutputKey(def *schema.StepDefinition, slot string) (string, error) {
	key, ok := def.Outputs[slot]
	if !ok || key == "" {
		return "", schema.NewErrorf(schema.ErrCodeMissingBinding, "output %q is not bound", slot).
			WithStep(def.Label()).WithPlugin(def.Plugin)
	}
	return key, nil
}

// OptionalOutputKey resolves the context key bound to an optional output slot.
func OptionalOutputKey(def *schema.StepDefinition, slot string) (string, bool) {
	key, ok := def.Outputs[slot]
	return key, ok && key != ""
}

// RequireInput resolves a required input slot and reads its value from the
// context as T. Fails with MISSING_BINDING when the slot is unbound and
// MISSING_CONTEXT_VALUE when the bound key is absent.
func RequireInput[T any](def *schema.StepDefinition, wc *wfctx.Context, slot string) (T, error) {
	var zero T
	key, err := InputKey(def, slot)
	if err != nil {
		return zero, err
	}
	v, err := wfctx.Get[T](wc, key)
	if err != nil {
		ee, ok := err.(*schema.EngineError)
		if !ok {
			ee = schema.NewError(schema.ErrCodeExecution, err.Error()).WithCause(err)
		}
		return zero, ee.WithStep(def.Label()).WithPlugin(def.Plugin)
	}
	return v, nil
}
