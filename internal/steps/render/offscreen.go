package render

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// FrameBeginGPU opens a frame that renders straight into the swapchain.
// Any acquisition failure marks the frame skipped instead of failing the
// run; a headless or occluded surface is an expected condition.
type FrameBeginGPU struct {
	logger *slog.Logger
}

func (s *FrameBeginGPU) PluginID() string { return "frame.gpu.begin" }

func (s *FrameBeginGPU) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	clear := clearColor(def)

	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "command buffer unavailable, frame skipped", "error", err)
		return nil
	}
	swap, err := dev.AcquireSwapchainTexture(cmd)
	if err != nil || swap.Texture == gpu.InvalidID {
		_ = dev.Submit(cmd)
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "swapchain unavailable, frame skipped")
		return nil
	}

	depth, err := ensureTexture(dev, wc, keys.DepthTexture, keys.DepthTextureWidth, keys.DepthTextureHeight,
		gpu.TextureDescriptor{
			Label:  "frame depth",
			Width:  swap.Width,
			Height: swap.Height,
			Format: gpu.TextureD32Float,
			Usage:  gpu.TextureUsageDepthTarget,
		})
	if err != nil {
		_ = dev.Submit(cmd)
		return err
	}

	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "frame direct",
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
		_ = dev.Submit(cmd)
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "render pass failed, frame skipped", "error", err)
		return nil
	}

	wc.Set(keys.CommandBuffer, cmd)
	wc.Set(keys.RenderPass, pass)
	wc.Set(keys.SwapchainDirect, swap.Texture)
	wc.Set(keys.FrameSkip, false)
	wc.Set(keys.FrameWidth, swap.Width)
	wc.Set(keys.FrameHeight, swap.Height)
	return nil
}

// BeginOffscreen opens a frame that renders into a lazily sized HDR color
// target instead of the swapchain. The swapchain texture is still acquired
// up front and parked in the context for postfx.composite, which resolves
// the HDR image onto it at end of frame.
type BeginOffscreen struct {
	logger *slog.Logger
}

func (s *BeginOffscreen) PluginID() string { return "frame.gpu.begin_offscreen" }

func (s *BeginOffscreen) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	clear := clearColor(def)

	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "command buffer unavailable, frame skipped", "error", err)
		return nil
	}
	swap, err := dev.AcquireSwapchainTexture(cmd)
	if err != nil || swap.Texture == gpu.InvalidID {
		_ = dev.Submit(cmd)
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "swapchain unavailable, frame skipped")
		return nil
	}
	wc.Set(keys.SwapchainTexture, swap.Texture)

	hdr, err := ensureTexture(dev, wc, keys.HDRTexture, keys.HDRWidth, keys.HDRHeight,
		gpu.TextureDescriptor{
			Label:  "hdr color",
			Width:  swap.Width,
			Height: swap.Height,
			Format: gpu.TextureRGBA16Float,
			Usage:  gpu.TextureUsageColorTarget | gpu.TextureUsageSampled,
		})
	if err != nil {
		_ = dev.Submit(cmd)
		return err
	}
	depth, err := ensureTexture(dev, wc, keys.DepthTexture, keys.DepthTextureWidth, keys.DepthTextureHeight,
		gpu.TextureDescriptor{
			Label:  "frame depth",
			Width:  swap.Width,
			Height: swap.Height,
			Format: gpu.TextureD32Float,
			Usage:  gpu.TextureUsageDepthTarget | gpu.TextureUsageSampled,
		})
	if err != nil {
		_ = dev.Submit(cmd)
		return err
	}

	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "frame offscreen",
		Colors: []gpu.ColorAttachment{{
			Texture:    hdr,
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
		_ = dev.Submit(cmd)
		wc.Set(keys.FrameSkip, true)
		s.logger.WarnContext(ctx, "render pass failed, frame skipped", "error", err)
		return nil
	}

	wc.Set(keys.CommandBuffer, cmd)
	wc.Set(keys.RenderPass, pass)
	wc.Set(keys.FrameSkip, false)
	wc.Set(keys.FrameWidth, swap.Width)
	wc.Set(keys.FrameHeight, swap.Height)
	return nil
}

// FrameEndGPU closes the direct frame path: end the pass, submit, advance
// the frame counter. The offscreen path ends through postfx.composite
// instead, which carries the same responsibility.
type FrameEndGPU struct {
	logger *slog.Logger
}

func (s *FrameEndGPU) PluginID() string { return "frame.gpu.end" }

func (s *FrameEndGPU) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
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
	if cmd, ok := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer); ok {
		if err := dev.Submit(cmd); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "submit frame").WithCause(err)
		}
		wc.Remove(keys.CommandBuffer)
	}
	wc.Remove(keys.SwapchainDirect)

	frame := wc.GetInt(keys.FrameNumber, 0) + 1
	wc.Set(keys.FrameNumber, frame)
	wc.Set(keys.FrameDraws, 0)

	s.logger.DebugContext(ctx, "frame submitted", "frame", frame)
	return nil
}

func clearColor(def *schema.StepDefinition) [4]float32 {
	return [4]float32{
		float32(engine.ParamFloat(def, "clear_r", 0.1)),
		float32(engine.ParamFloat(def, "clear_g", 0.1)),
		float32(engine.ParamFloat(def, "clear_b", 0.15)),
		1,
	}
}

// ensureTexture returns the texture cached under texKey, recreating it when
// the requested size changed. The width/height keys track the cached size.
func ensureTexture(dev gpu.Device, wc *wfctx.Context, texKey, widthKey, heightKey string, desc gpu.TextureDescriptor) (gpu.ID, error) {
	cached, ok := wfctx.TryGet[gpu.ID](wc, texKey)
	if ok &&
		wc.GetInt(widthKey, 0) == desc.Width &&
		wc.GetInt(heightKey, 0) == desc.Height {
		return cached, nil
	}
	if ok {
		dev.ReleaseTexture(cached)
	}

	tex, err := dev.CreateTexture(desc)
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create texture %q", desc.Label).WithCause(err)
	}
	wc.Set(texKey, tex)
	wc.Set(widthKey, desc.Width)
	wc.Set(heightKey, desc.Height)
	return tex, nil
}
