package graphics

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ScreenshotRequest validates a screenshot destination, creates its parent
// directories and marks it pending. graphics.framebuffer.readback encodes
// the pending file on its next run.
type ScreenshotRequest struct {
	logger *slog.Logger
}

func (s *ScreenshotRequest) PluginID() string { return "graphics.screenshot.request" }

func (s *ScreenshotRequest) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	pathKey, err := engine.InputKey(def, "output_path")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "success")
	if err != nil {
		return err
	}

	path := wc.GetString(pathKey, "")
	if path == "" {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", pathKey)
	}

	resolved, err := homedir.Expand(path)
	if err != nil {
		resolved = path
	}
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			wc.Set(outKey, false)
			return schema.NewErrorf(schema.ErrCodeIO, "create screenshot directory %s", dir).WithCause(err)
		}
	}

	wc.Set(keys.ScreenshotPending, resolved)
	wc.Set(outKey, true)

	s.logger.InfoContext(ctx, "screenshot requested", "path", resolved)
	return nil
}

// FramebufferReadback synchronously reads a texture back to the CPU. The
// source_texture_key input names the context key holding the texture; it
// falls back to the direct path's swapchain texture. When a screenshot is
// pending the pixels are also encoded as PNG to the requested path.
type FramebufferReadback struct {
	logger *slog.Logger
}

func (s *FramebufferReadback) PluginID() string { return "graphics.framebuffer.readback" }

func (s *FramebufferReadback) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	srcKeyKey, err := engine.InputKey(def, "source_texture_key")
	if err != nil {
		return err
	}
	outDataKey, err := engine.OutputKey(def, "output_key")
	if err != nil {
		return err
	}
	outWidthKey, err := engine.OutputKey(def, "output_width")
	if err != nil {
		return err
	}
	outHeightKey, err := engine.OutputKey(def, "output_height")
	if err != nil {
		return err
	}
	outSuccessKey, err := engine.OutputKey(def, "success")
	if err != nil {
		return err
	}

	srcKey := wc.GetString(srcKeyKey, "")
	if srcKey == "" {
		srcKey = keys.SwapchainDirect
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	texture, ok := wfctx.TryGet[gpu.ID](wc, srcKey)
	if !ok {
		wc.Set(outSuccessKey, false)
		return schema.NewErrorf(schema.ErrCodeMissingContextValue,
			"source texture %q not found in context", srcKey)
	}

	width := wc.GetInt(keys.FrameWidth, 0)
	height := wc.GetInt(keys.FrameHeight, 0)
	if width <= 0 || height <= 0 {
		cfg, err := wfctx.Get[schema.ViewportConfig](wc, keys.Viewport)
		if err != nil {
			wc.Set(outSuccessKey, false)
			return err
		}
		width, height = cfg.Width, cfg.Height
	}

	pixels, err := dev.ReadTexture(texture, width, height)
	if err != nil {
		wc.Set(outSuccessKey, false)
		return schema.NewError(schema.ErrCodeExecution, "texture readback").WithCause(err)
	}

	wc.Set(outDataKey, pixels)
	wc.Set(outWidthKey, width)
	wc.Set(outHeightKey, height)
	wc.Set(outSuccessKey, true)

	if path, ok := wfctx.TryGet[string](wc, keys.ScreenshotPending); ok {
		if err := writePNG(path, pixels, width, height); err != nil {
			wc.Set(outSuccessKey, false)
			return err
		}
		wc.Remove(keys.ScreenshotPending)
		s.logger.InfoContext(ctx, "screenshot written",
			"path", path, "width", width, "height", height)
	}

	s.logger.DebugContext(ctx, "framebuffer read back", "width", width, "height", height)
	return nil
}

func writePNG(path string, pixels []byte, width, height int) error {
	img := &image.NRGBA{
		Pix:    pixels,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return schema.NewError(schema.ErrCodeIO, "encode png").WithCause(err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return schema.NewErrorf(schema.ErrCodeIO, "create directory %s", dir).WithCause(err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "write %s", path).WithCause(err)
	}
	return nil
}
