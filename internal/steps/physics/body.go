// Package physics adapts physics bodies into the scene records the render
// steps consume. There is no rigid-body simulation behind it: bodies keep
// their starting pose, which is what the headless frame loop needs to draw
// and shadow a scene.
package physics

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Steps returns the physics adapter steps.
func Steps(logger *slog.Logger) []engine.Step {
	return []engine.Step{
		&BodyAdd{logger: logger},
	}
}

// BodyAdd registers a named body: a transform record at its starting pose, a
// visual record controlling how the body pass draws it, and an entry in the
// body list. Boxes honor the visible and spinning flags; capsules stand in
// for characters and are hidden when the body is the player.
type BodyAdd struct {
	logger *slog.Logger
}

func (s *BodyAdd) PluginID() string { return "physics.body.add" }

func (s *BodyAdd) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	name := engine.ParamString(def, "name", "body")
	shape := engine.ParamString(def, "shape", "box")

	pos := [3]float32{
		float32(engine.ParamFloat(def, "pos_x", 0)),
		float32(engine.ParamFloat(def, "pos_y", 0)),
		float32(engine.ParamFloat(def, "pos_z", 0)),
	}
	isPlayer := engine.ParamFloat(def, "is_player", 0) > 0.5

	var transform schema.BodyTransform
	var visual schema.BodyVisual
	switch shape {
	case "capsule":
		radius := float32(engine.ParamFloat(def, "radius", 0.4))
		height := float32(engine.ParamFloat(def, "height", 1.2))
		full := height + radius*2
		transform = schema.BodyTransform{
			Position: pos,
			Rotation: [4]float32{0, 0, 0, 1},
			Size:     [3]float32{radius * 2, full, radius * 2},
		}
		visual = schema.BodyVisual{
			Scale:   [3]float32{radius * 2, full / 2, radius * 2},
			Visible: !isPlayer,
			Extent:  full / 2,
		}
	case "box":
		size := [3]float32{
			float32(engine.ParamFloat(def, "size_x", 1)),
			float32(engine.ParamFloat(def, "size_y", 1)),
			float32(engine.ParamFloat(def, "size_z", 1)),
		}
		transform = schema.BodyTransform{
			Position: pos,
			Rotation: [4]float32{0, 0, 0, 1},
			Size:     size,
		}
		visual = schema.BodyVisual{
			Scale:      [3]float32{size[0] / 2, size[1] / 2, size[2] / 2},
			Visible:    engine.ParamFloat(def, "visible", 1) > 0.5,
			Spinning:   engine.ParamFloat(def, "spinning", 0) > 0.5,
			SpinSpeedX: float32(engine.ParamFloat(def, "spin_speed_x", 1)),
			SpinSpeedY: float32(engine.ParamFloat(def, "spin_speed_y", 0.7)),
			Extent:     max(size[0], size[1], size[2]) / 2,
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation,
			"physics.body.add: unknown shape %q", shape)
	}

	wc.Set(keys.BodyTransformPrefix+name, transform)
	wc.Set(keys.BodyVisualPrefix+name, visual)
	wc.Set(keys.PhysicsBodies, appendBody(wc, name))
	if isPlayer {
		wc.Set(keys.PlayerBody, name)
	}

	s.logger.InfoContext(ctx, "body added",
		"name", name,
		"shape", shape,
		"pos", pos,
		"player", isPlayer,
	)
	return nil
}

// appendBody adds name to the body list, accepting either string or any
// slices since the list may come from JSON. Re-adding a body replaces its
// records but keeps a single list entry.
func appendBody(wc *wfctx.Context, name string) []string {
	var bodies []string
	if raw, ok := wc.Get(keys.PhysicsBodies); ok {
		switch v := raw.(type) {
		case []string:
			bodies = v
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok {
					bodies = append(bodies, s)
				}
			}
		}
	}
	for _, b := range bodies {
		if b == name {
			return bodies
		}
	}
	return append(bodies, name)
}
