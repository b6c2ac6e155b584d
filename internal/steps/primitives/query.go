package primitives

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// JSONQuery runs a jq program over a structured context value, or over the
// whole context snapshot when no source is bound.
type JSONQuery struct {
	logger *slog.Logger
	engine *expressions.GoJQEngine
}

func (s *JSONQuery) PluginID() string { return "json.query" }

func (s *JSONQuery) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	query, err := engine.RequiredParamString(def, "query")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "result")
	if err != nil {
		return err
	}

	data := wc.Snapshot()
	if sourceKey, ok := engine.OptionalInputKey(def, "source"); ok {
		source, err := wfctx.Get[map[string]any](wc, sourceKey)
		if err != nil {
			return err
		}
		data = source
	}

	result, err := s.engine.Evaluate(ctx, query, data)
	if err != nil {
		return err
	}
	wc.Set(outKey, result)

	s.logger.DebugContext(ctx, "jq query evaluated", "output", outKey)
	return nil
}
