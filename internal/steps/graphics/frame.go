package graphics

import (
	"context"
	"log/slog"
	"time"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// FrameBegin starts the direct frame path: acquire a command buffer and the
// swapchain texture, lazily size the depth buffer and open a cleared render
// pass. An unavailable swapchain marks the frame skipped instead of failing.
type FrameBegin struct {
	logger *slog.Logger
}

func (s *FrameBegin) PluginID() string { return "graphics.frame.begin" }

func (s *FrameBegin) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	clearKey, err := engine.InputKey(def, "clear_color")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "frame_id")
	if err != nil {
		return err
	}

	clearRaw, ok := wc.Get(clearKey)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", clearKey)
	}
	clear, err := asColor(clearRaw)
	if err != nil {
		return err
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "acquire command buffer").WithCause(err)
	}

	frameID := wc.GetInt(keys.FrameNumber, 0)
	swap, err := dev.AcquireSwapchainTexture(cmd)
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "acquire swapchain texture").WithCause(err)
	}
	if swap.Texture == gpu.InvalidID {
		// Surface not presentable this frame. Submit the empty command
		// buffer and mark the frame skipped so draw steps no-op.
		if err := dev.Submit(cmd); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "submit empty frame").WithCause(err)
		}
		wc.Set(keys.FrameSkip, true)
		wc.Set(outKey, schema.FrameRecord{FrameID: uint64(frameID), Skipped: true})
		s.logger.WarnContext(ctx, "swapchain unavailable, frame skipped", "frame", frameID)
		return nil
	}

	depth, err := ensureDepthTexture(dev, wc, swap.Width, swap.Height)
	if err != nil {
		return err
	}

	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "frame",
		Colors: []gpu.ColorAttachment{{
			Texture:    swap.Texture,
			Load:       gpu.LoadClear,
			Store:      gpu.StoreKeep,
			ClearColor: clear,
		}},
		Depth: &gpu.DepthAttachment{
			Texture:    depth,
			Load:       gpu.LoadClear,
			Store:      gpu.StoreDontCare,
			ClearDepth: 1,
		},
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "begin render pass").WithCause(err)
	}

	wc.Set(keys.CommandBuffer, cmd)
	wc.Set(keys.SwapchainDirect, swap.Texture)
	wc.Set(keys.RenderPass, pass)
	wc.Set(keys.FrameSkip, false)
	wc.Set(keys.FrameWidth, swap.Width)
	wc.Set(keys.FrameHeight, swap.Height)
	wc.Set(outKey, schema.FrameRecord{
		FrameID:    uint64(frameID),
		ClearColor: clear,
		Skipped:    false,
		Timestamp:  time.Now().UnixNano(),
	})

	s.logger.DebugContext(ctx, "frame begun",
		"frame", frameID, "width", swap.Width, "height", swap.Height)
	return nil
}

// FrameEnd closes the open render pass, submits the frame and advances the
// monotonic frame counter.
type FrameEnd struct {
	logger *slog.Logger
}

func (s *FrameEnd) PluginID() string { return "graphics.frame.end" }

func (s *FrameEnd) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		wc.Set(keys.FrameSkip, false)
		return nil
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	if pass, ok := wfctx.TryGet[gpu.ID](wc, keys.RenderPass); ok {
		if err := dev.EndRenderPass(pass); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "end render pass").WithCause(err)
		}
		wc.Remove(keys.RenderPass)
	}

	cmd, err := wfctx.Get[gpu.ID](wc, keys.CommandBuffer)
	if err != nil {
		return err
	}
	if err := dev.Submit(cmd); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "submit frame").WithCause(err)
	}
	wc.Remove(keys.CommandBuffer)
	wc.Remove(keys.SwapchainDirect)

	frame := wc.GetInt(keys.FrameNumber, 0) + 1
	wc.Set(keys.FrameNumber, frame)
	wc.Set(keys.FrameDraws, 0)

	s.logger.DebugContext(ctx, "frame submitted", "frame", frame)
	return nil
}

// ensureDepthTexture returns the cached depth texture, recreating it when
// the surface size changed.
func ensureDepthTexture(dev gpu.Device, wc *wfctx.Context, width, height int) (gpu.ID, error) {
	cached, ok := wfctx.TryGet[gpu.ID](wc, keys.DepthTexture)
	if ok &&
		wc.GetInt(keys.DepthTextureWidth, 0) == width &&
		wc.GetInt(keys.DepthTextureHeight, 0) == height {
		return cached, nil
	}
	if ok {
		dev.ReleaseTexture(cached)
	}

	depth, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:  "frame depth",
		Width:  width,
		Height: height,
		Format: gpu.TextureD32Float,
		Usage:  gpu.TextureUsageDepthTarget,
	})
	if err != nil {
		return gpu.InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "create depth texture").WithCause(err)
	}
	wc.Set(keys.DepthTexture, depth)
	wc.Set(keys.DepthTextureWidth, width)
	wc.Set(keys.DepthTextureHeight, height)
	return depth, nil
}

func asColor(v any) ([4]float32, error) {
	floats, err := asFloats(v)
	if err != nil {
		return [4]float32{}, err
	}
	if len(floats) != 4 {
		return [4]float32{}, schema.NewErrorf(schema.ErrCodeValidation,
			"clear color must have 4 components, got %d", len(floats))
	}
	var out [4]float32
	for i, f := range floats {
		out[i] = float32(f)
	}
	return out, nil
}
