// Package graphics implements the GPU resource lifecycle steps: device
// initialization, shader and pipeline creation, buffer and texture uploads,
// the direct frame loop and framebuffer readback.
package graphics

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ViewportInit validates the requested viewport and stores the config record.
// The aspect ratio is the exact quotient of the given dimensions.
type ViewportInit struct {
	logger *slog.Logger
}

func (s *ViewportInit) PluginID() string { return "graphics.viewport.init" }

func (s *ViewportInit) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	outKey, err := engine.OutputKey(def, "viewport_config")
	if err != nil {
		return err
	}

	width := engine.ParamInt(def, "width", 0)
	height := engine.ParamInt(def, "height", 0)
	if width <= 0 || height <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"viewport dimensions must be positive, got %dx%d", width, height)
	}

	cfg := schema.ViewportConfig{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
	}
	wc.Set(outKey, cfg)
	wc.Set(keys.Viewport, cfg)

	s.logger.InfoContext(ctx, "viewport configured",
		"width", width, "height", height, "aspect_ratio", cfg.AspectRatio)
	return nil
}
