package graphics

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// DeviceFactory creates a device for the requested backend and surface size.
type DeviceFactory func(backend gpu.Backend, width, height int) (gpu.Device, error)

// GPUInit creates the GPU device from the validated viewport and renderer
// selection. When the preferred backend fails the step retries once with
// auto before giving up.
type GPUInit struct {
	logger  *slog.Logger
	factory DeviceFactory
}

func (s *GPUInit) PluginID() string { return "graphics.gpu.init" }

func (s *GPUInit) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "gpu_handle")
	if err != nil {
		return err
	}
	cfg, err := engine.RequireInput[schema.ViewportConfig](def, wc, "viewport_config")
	if err != nil {
		return err
	}
	renderer, err := engine.RequireInput[string](def, wc, "selected_renderer")
	if err != nil {
		return err
	}

	backend := gpu.Backend(renderer)
	if !gpu.KnownBackend(renderer) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown renderer backend %q", renderer)
	}

	dev, err := s.factory(backend, cfg.Width, cfg.Height)
	if err != nil && backend != gpu.BackendAuto {
		s.logger.WarnContext(ctx, "preferred backend failed, retrying with auto",
			"backend", backend, "error", err)
		dev, err = s.factory(gpu.BackendAuto, cfg.Width, cfg.Height)
	}
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeResourceCreation,
			"device creation failed for backend %q", renderer).WithCause(err)
	}

	wc.Set(keys.Device, dev)
	state := map[string]any{
		"initialized": true,
		"width":       cfg.Width,
		"height":      cfg.Height,
		"renderer":    string(dev.Backend()),
	}
	wc.Set(outKey, state)
	wc.Set(keys.GPUState, state)

	s.logger.InfoContext(ctx, "gpu device initialized",
		"backend", dev.Backend(), "width", cfg.Width, "height", cfg.Height)
	return nil
}
