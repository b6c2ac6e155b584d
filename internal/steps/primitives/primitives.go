// Package primitives implements the small data-shuffling steps: string
// formatting, literal and computed context values, jq queries, list
// emission and the debug metrics aggregator.
package primitives

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
)

// Steps returns the primitive steps wired to the shared expression engines.
func Steps(logger *slog.Logger, exprEngine *expressions.ExprEngine, jqEngine *expressions.GoJQEngine) []engine.Step {
	return []engine.Step{
		&StringFormat{logger: logger},
		&ValueSet{logger: logger},
		&ValueCompute{logger: logger, engine: exprEngine},
		&JSONQuery{logger: logger, engine: jqEngine},
		&ListEmit{logger: logger},
		NewDebugMetrics(logger),
	}
}

// formatValue renders a context value for string interpolation. Whole floats
// print as integers since JSON decoding turns every number into float64.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return formatValue(float64(val))
	default:
		return ""
	}
}
