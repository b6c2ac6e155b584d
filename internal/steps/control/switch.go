package control

import (
	"context"
	"math"
	"strconv"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Switch routes execution to the case matching a string-coerced context
// value. An unmatched value falls through to the "default" case when present,
// otherwise the step is a no-op.
type Switch struct {
	runner engine.Runner
}

func (s *Switch) PluginID() string { return "control.switch" }

func (s *Switch) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Cases) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "switch has no cases")
	}

	key, err := engine.InputKey(def, "value")
	if err != nil {
		return err
	}
	raw, ok := wc.Get(key)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}

	discriminant := coerceToString(raw)
	branch, ok := def.Cases[discriminant]
	if !ok {
		branch, ok = def.Cases["default"]
		if !ok {
			return nil
		}
	}
	return s.runner.RunSteps(ctx, branch, wc)
}

// coerceToString renders a context value the way case labels are written:
// booleans as true/false, whole numbers without a fraction.
func coerceToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return ""
	}
}
