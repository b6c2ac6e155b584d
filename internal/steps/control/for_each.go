package control

import (
	"context"
	"fmt"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ForEach runs its Body once per element of a context list, in order. The
// current element is bound under the item_var key (default "item") and its
// position under "<item_var>.index". Iterations share the workflow context,
// so later iterations see writes from earlier ones.
type ForEach struct {
	runner engine.Runner
}

func (s *ForEach) PluginID() string { return "control.for_each" }

func (s *ForEach) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if len(def.Body) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "for_each has an empty body")
	}

	key, err := engine.InputKey(def, "items")
	if err != nil {
		return err
	}
	raw, ok := wc.Get(key)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}
	items, err := asList(raw)
	if err != nil {
		return err
	}

	itemVar := engine.ParamString(def, "item_var", "item")
	indexVar := itemVar + ".index"

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "run cancelled").WithCause(err)
		}
		wc.Set(itemVar, item)
		wc.Set(indexVar, i)
		if err := s.runner.RunSteps(ctx, def.Body, wc); err != nil {
			return err
		}
	}
	return nil
}

func asList(v any) ([]any, error) {
	switch list := v.(type) {
	case []any:
		return list, nil
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out, nil
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"items must be a list, got %s", fmt.Sprintf("%T", v))
	}
}
