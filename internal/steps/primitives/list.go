package primitives

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ListEmit publishes a literal list parameter into the context, typically
// as input for control.for_each.
type ListEmit struct {
	logger *slog.Logger
}

func (s *ListEmit) PluginID() string { return "list.emit" }

func (s *ListEmit) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "list")
	if err != nil {
		return err
	}

	raw, ok := def.Params["items"]
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, `parameter "items" is required`)
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return schema.NewError(schema.ErrCodeValidation, `parameter "items" must be a non-empty list`)
	}
	for _, item := range items {
		switch item.(type) {
		case string, float64, int, int64, bool:
		default:
			return schema.NewErrorf(schema.ErrCodeValidation,
				"list items must be scalars, got %T", item)
		}
	}

	wc.Set(outKey, items)
	s.logger.DebugContext(ctx, "list emitted", "output", outKey, "items", len(items))
	return nil
}
