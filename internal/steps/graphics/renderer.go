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

// RendererInit validates the backend selection against the known backends
// and stores it for graphics.gpu.init.
type RendererInit struct {
	logger *slog.Logger
}

func (s *RendererInit) PluginID() string { return "graphics.renderer.init" }

func (s *RendererInit) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "selected_renderer")
	if err != nil {
		return err
	}

	name := engine.ParamString(def, "backend", "auto")
	backend := gpu.Backend(name)
	if !gpu.KnownBackend(name) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"unknown renderer backend %q (want vulkan, metal, dx12 or auto)", name)
	}

	wc.Set(outKey, string(backend))
	wc.Set(keys.Renderer, string(backend))

	s.logger.InfoContext(ctx, "renderer selected", "backend", backend)
	return nil
}
