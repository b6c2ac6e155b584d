package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/renderflow/engine/pkg/schema"
)

// ExprEngine evaluates value.compute expressions with expr-lang/expr. On top
// of the stock language (let bindings, array operations, ??, ?., |) it
// registers the scalar helpers frame scripts keep reaching for: clamp, lerp
// and smoothstep. Compiled programs are cached per expression and shared
// across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates the engine with an empty program cache.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

var _ Engine = (*ExprEngine)(nil)

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs the expression against data, whose keys become top-level
// variables. Unknown variables evaluate to nil rather than failing, since
// workflow context keys come and go between frames.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.program(expression, data)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// program returns the compiled form of expression, compiling and caching it
// on first use.
func (e *ExprEngine) program(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	opts := append(scalarHelpers(),
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	prg, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	e.cache[expression] = prg
	return prg, nil
}

// scalarHelpers exposes the graphics staples to expressions, so a workflow
// can write clamp(ctx.exposure, 0.1, 4.0) or lerp(a, b, t) instead of
// spelling the arithmetic out.
func scalarHelpers() []expr.Option {
	return []expr.Option{
		expr.Function("clamp", func(args ...any) (any, error) {
			v, lo, hi, err := threeNumbers("clamp", args)
			if err != nil {
				return nil, err
			}
			return min(max(v, lo), hi), nil
		}),
		expr.Function("lerp", func(args ...any) (any, error) {
			a, b, t, err := threeNumbers("lerp", args)
			if err != nil {
				return nil, err
			}
			return a + (b-a)*t, nil
		}),
		expr.Function("smoothstep", func(args ...any) (any, error) {
			edge0, edge1, x, err := threeNumbers("smoothstep", args)
			if err != nil {
				return nil, err
			}
			if edge0 == edge1 {
				if x < edge0 {
					return 0.0, nil
				}
				return 1.0, nil
			}
			t := min(max((x-edge0)/(edge1-edge0), 0), 1)
			return t * t * (3 - 2*t), nil
		}),
	}
}

func threeNumbers(name string, args []any) (float64, float64, float64, error) {
	if len(args) != 3 {
		return 0, 0, 0, fmt.Errorf("%s expects 3 arguments, got %d", name, len(args))
	}
	out := [3]float64{}
	for i, a := range args {
		n, ok := asNumber(a)
		if !ok {
			return 0, 0, 0, fmt.Errorf("%s argument %d is not a number", name, i+1)
		}
		out[i] = n
	}
	return out[0], out[1], out[2], nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
