package engine

import (
	"github.com/renderflow/engine/pkg/schema"
)

// Param helpers read literal step parameters with JSON-style numeric
// coercion. JSON decoding yields float64 for every number, so integer
// parameters arrive as floats and are narrowed here.

// ParamString returns the string parameter name, or def when absent.
func ParamString(sd *schema.StepDefinition, name, def string) string {
	if v, ok := sd.Params[name].(string); ok {
		return v
	}
	return def
}

// RequiredParamString returns the string parameter name or a validation error.
func RequiredParamString(sd *schema.StepDefinition, name string) (string, error) {
	v, ok := sd.Params[name].(string)
	if !ok || v == "" {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "parameter %q is required", name).
			WithStep(sd.Label()).WithPlugin(sd.Plugin)
	}
	return v, nil
}

// ParamBool returns the boolean parameter name, or def when absent.
func ParamBool(sd *schema.StepDefinition, name string, def bool) bool {
	if v, ok := sd.Params[name].(bool); ok {
		return v
	}
	return def
}

// ParamInt returns the integer parameter name, or def when absent.
func ParamInt(sd *schema.StepDefinition, name string, def int) int {
	switch v := sd.Params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// RequiredParamInt returns the integer parameter name or a validation error.
func RequiredParamInt(sd *schema.StepDefinition, name string) (int, error) {
	switch v := sd.Params[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "parameter %q must be an integer", name).
			WithStep(sd.Label()).WithPlugin(sd.Plugin)
	}
}

// ParamFloat returns the float parameter name, or def when absent.
func ParamFloat(sd *schema.StepDefinition, name string, def float64) float64 {
	switch v := sd.Params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// ParamFloats returns a numeric array parameter as float64s. The second
// return is false when the parameter is absent or any element is not numeric.
func ParamFloats(sd *schema.StepDefinition, name string) ([]float64, bool) {
	raw, ok := sd.Params[name]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []float64:
		return v, true
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			case int64:
				out[i] = float64(n)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}
