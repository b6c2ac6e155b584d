package render

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// LightingSetup publishes the directional light record consumed by
// render.prepare and shadow.setup.
type LightingSetup struct {
	logger *slog.Logger
}

func (s *LightingSetup) PluginID() string { return "render.lighting.setup" }

func (s *LightingSetup) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	state := schema.LightingState{
		Direction: [3]float32{0, -1, 0},
		Color:     [3]float32{1, 1, 1},
		Ambient:   [3]float32{0.2, 0.2, 0.2},
		Exposure:  1,
	}

	if v, ok := paramVec3(def, "direction"); ok {
		state.Direction = v
	}
	if v, ok := paramVec3(def, "color"); ok {
		state.Color = v
	}
	if v, ok := paramVec3(def, "ambient"); ok {
		state.Ambient = v
	}
	state.Exposure = float32(engine.ParamFloat(def, "exposure", float64(state.Exposure)))

	if state.Direction == [3]float32{} {
		return schema.NewError(schema.ErrCodeValidation, "light direction must be non-zero")
	}

	wc.Set(keys.LightingState, state)
	if outKey, ok := engine.OptionalOutputKey(def, "lighting"); ok {
		wc.Set(outKey, state)
	}

	s.logger.DebugContext(ctx, "lighting configured",
		"direction", state.Direction, "exposure", state.Exposure)
	return nil
}

func paramVec3(sd *schema.StepDefinition, name string) ([3]float32, bool) {
	floats, ok := engine.ParamFloats(sd, name)
	if !ok || len(floats) != 3 {
		return [3]float32{}, false
	}
	return [3]float32{float32(floats[0]), float32(floats[1]), float32(floats[2])}, true
}
