package render

import (
	"context"
	"log/slog"

	"cogentcore.org/core/math32"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// CameraSetup computes view and projection matrices for an orbit-style
// camera looking at the origin from a configurable distance.
type CameraSetup struct {
	logger *slog.Logger
}

func (s *CameraSetup) PluginID() string { return "camera.setup" }

func (s *CameraSetup) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "camera_state")
	if err != nil {
		return err
	}

	distance := float32(inputNumber(def, wc, "camera_distance", 35))
	fov := float32(inputNumber(def, wc, "camera_fov", 60))
	aspect := float32(inputNumber(def, wc, "aspect_ratio", 1.777))
	near := float32(inputNumber(def, wc, "near_plane", 0.1))
	far := float32(inputNumber(def, wc, "far_plane", 100))

	if cfg, ok := wfctx.TryGet[schema.ViewportConfig](wc, keys.Viewport); ok {
		if _, bound := engine.OptionalInputKey(def, "aspect_ratio"); !bound {
			aspect = float32(cfg.AspectRatio)
		}
	}

	view := math32.NewLookAt(
		math32.Vec3(0, 0, -distance),
		math32.Vec3(0, 0, 0),
		math32.Vec3(0, 1, 0),
	)
	var proj math32.Matrix4
	proj.SetPerspective(fov, aspect, near, far)

	state := schema.CameraState{
		View:       [16]float32(*view),
		Projection: [16]float32(proj),
	}
	wc.Set(outKey, state)
	wc.Set(keys.CameraState, state)

	s.logger.InfoContext(ctx, "camera matrices computed",
		"distance", distance, "fov", fov, "aspect", aspect)
	return nil
}

// CameraSetPose places the camera at an explicit position looking at an
// explicit target, replacing any earlier camera state.
type CameraSetPose struct {
	logger *slog.Logger
}

func (s *CameraSetPose) PluginID() string { return "camera.set_pose" }

func (s *CameraSetPose) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "pose")
	if err != nil {
		return err
	}

	position, err := inputVec3(def, wc, "position", math32.Vec3(0, 2, 8))
	if err != nil {
		return err
	}
	lookAt, err := inputVec3(def, wc, "look_at", math32.Vec3(0, 0, 0))
	if err != nil {
		return err
	}
	up, err := inputVec3(def, wc, "up", math32.Vec3(0, 1, 0))
	if err != nil {
		return err
	}
	fov := float32(inputNumber(def, wc, "fov_degrees", 60))
	near := float32(inputNumber(def, wc, "near", 0.1))
	far := float32(inputNumber(def, wc, "far", 100))

	aspect := float32(1.777)
	if cfg, ok := wfctx.TryGet[schema.ViewportConfig](wc, keys.Viewport); ok {
		aspect = float32(cfg.AspectRatio)
	}

	view := math32.NewLookAt(position, lookAt, up)
	var proj math32.Matrix4
	proj.SetPerspective(fov, aspect, near, far)

	state := schema.CameraState{
		View:       [16]float32(*view),
		Projection: [16]float32(proj),
	}
	wc.Set(outKey, state)
	wc.Set(keys.CameraState, state)

	s.logger.DebugContext(ctx, "camera pose set",
		"position", position, "look_at", lookAt, "fov", fov)
	return nil
}

// inputNumber reads a numeric value from a bound input key when present,
// then from a literal parameter, then falls back to def.
func inputNumber(sd *schema.StepDefinition, wc *wfctx.Context, name string, def float64) float64 {
	if key, ok := engine.OptionalInputKey(sd, name); ok {
		return wc.GetFloat(key, def)
	}
	return engine.ParamFloat(sd, name, def)
}

// inputVec3 reads a 3-component vector from a bound input key or a literal
// parameter, failing when a bound or provided value has the wrong shape.
func inputVec3(sd *schema.StepDefinition, wc *wfctx.Context, name string, def math32.Vector3) (math32.Vector3, error) {
	var floats []float64
	if key, ok := engine.OptionalInputKey(sd, name); ok {
		raw, present := wc.Get(key)
		if !present {
			return def, schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
		}
		list, ok := rawFloats(raw)
		if !ok {
			return def, schema.NewErrorf(schema.ErrCodeValidation, "input %q must be a number list", name)
		}
		floats = list
	} else if list, ok := engine.ParamFloats(sd, name); ok {
		floats = list
	} else {
		return def, nil
	}
	if len(floats) != 3 {
		return def, schema.NewErrorf(schema.ErrCodeValidation,
			"%q must have 3 components, got %d", name, len(floats))
	}
	return math32.Vec3(float32(floats[0]), float32(floats[1]), float32(floats[2])), nil
}

func rawFloats(raw any) ([]float64, bool) {
	switch v := raw.(type) {
	case []float64:
		return v, true
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, true
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
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
