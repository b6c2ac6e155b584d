package render

import (
	"context"
	"log/slog"

	"cogentcore.org/core/math32"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

const ssaoKernelSize = 16

// PostFXSetup creates the shared post-processing resources: a linear and a
// nearest clamp sampler plus the SSAO hemisphere kernel. Runs once; later
// invocations are no-ops.
type PostFXSetup struct {
	logger *slog.Logger
}

func (s *PostFXSetup) PluginID() string { return "postfx.setup" }

func (s *PostFXSetup) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.PostFXInitialized, false) {
		return nil
	}
	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	linear, err := dev.CreateSampler(gpu.SamplerDescriptor{Label: "postfx linear", Filter: gpu.FilterLinear})
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "create linear sampler").WithCause(err)
	}
	nearest, err := dev.CreateSampler(gpu.SamplerDescriptor{Label: "postfx nearest", Filter: gpu.FilterNearest})
	if err != nil {
		dev.ReleaseSampler(linear)
		return schema.NewError(schema.ErrCodeResourceCreation, "create nearest sampler").WithCause(err)
	}

	wc.Set(keys.LinearSampler, linear)
	wc.Set(keys.NearestSampler, nearest)
	wc.Set(keys.SSAOKernel, ssaoKernel())
	wc.Set(keys.PostFXInitialized, true)

	s.logger.InfoContext(ctx, "postfx resources created", "kernel_samples", ssaoKernelSize)
	return nil
}

// ssaoKernel generates the deterministic 16-sample hemisphere kernel as
// padded vec4s, quadratically scaled so samples cluster near the surface.
func ssaoKernel() []float32 {
	kernel := make([]float32, 0, ssaoKernelSize*4)
	for i := 0; i < ssaoKernelSize; i++ {
		x := hashFloat(i, 0)*2 - 1
		y := hashFloat(i, 1)*2 - 1
		z := hashFloat(i, 2) // hemisphere, z >= 0

		length := math32.Sqrt(x*x + y*y + z*z)
		if length < 0.001 {
			x, y, z, length = 0, 0, 1, 1
		}
		x, y, z = x/length, y/length, z/length

		scale := float32(i) / ssaoKernelSize
		scale = 0.1 + scale*scale*0.9

		kernel = append(kernel, x*scale, y*scale, z*scale, 0)
	}
	return kernel
}

func hashFloat(i, seed int) float32 {
	h := int32(i)*374761393 + int32(seed)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	return float32(h&0x7FFFFFFF) / float32(0x7FFFFFFF)
}

// endScenePass closes the frame's scene pass if it is still open. The postfx
// passes each open their own pass on the shared command buffer, so whichever
// runs first takes over from the scene geometry pass.
func endScenePass(dev gpu.Device, wc *wfctx.Context) error {
	pass, ok := wfctx.TryGet[gpu.ID](wc, keys.RenderPass)
	if !ok {
		return nil
	}
	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end scene pass").WithCause(err)
	}
	wc.Remove(keys.RenderPass)
	return nil
}

// SSAO renders screen-space ambient occlusion from the depth buffer into a
// lazily sized R8 texture. Missing resources skip the effect for the frame.
type SSAO struct {
	logger *slog.Logger
}

func (s *SSAO) PluginID() string { return "postfx.ssao" }

func (s *SSAO) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	dev, okDev := wfctx.TryGet[gpu.Device](wc, keys.Device)
	cmd, okCmd := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, ssaoPipeline)
	depth, okDepth := wfctx.TryGet[gpu.ID](wc, keys.DepthTexture)
	sampler, okSampler := wfctx.TryGet[gpu.ID](wc, keys.NearestSampler)
	if !okDev || !okCmd || !okPipe || !okDepth || !okSampler {
		s.logger.WarnContext(ctx, "ssao resources missing, skipping")
		return nil
	}

	width := wc.GetInt(keys.FrameWidth, 0)
	height := wc.GetInt(keys.FrameHeight, 0)
	if width == 0 || height == 0 {
		return nil
	}
	kernel, ok := wfctx.TryGet[[]float32](wc, keys.SSAOKernel)
	if !ok || len(kernel) < ssaoKernelSize*4 {
		return nil
	}

	target, err := ensureTexture(dev, wc, keys.SSAOTexture, keys.SSAOWidth, keys.SSAOHeight,
		gpu.TextureDescriptor{
			Label:  "ssao",
			Width:  width,
			Height: height,
			Format: gpu.TextureR8Unorm,
			Usage:  gpu.TextureUsageColorTarget | gpu.TextureUsageSampled,
		})
	if err != nil {
		return err
	}

	proj, ok := wfctx.TryGet[math32.Matrix4](wc, keys.ProjMatrix)
	if !ok {
		proj = identity()
	}
	invProj := identity()
	if inv, err := proj.Inverse(); err == nil {
		invProj = *inv
	}

	// projection + inv_projection + params + kernel, all vec4 aligned.
	uniforms := make([]byte, 64+64+16+ssaoKernelSize*16)
	copy(uniforms, matrixBytes(&proj))
	copy(uniforms[64:], matrixBytes(&invProj))
	putFloat32(uniforms, 128, 0.5)   // radius
	putFloat32(uniforms, 132, 0.025) // bias
	putFloat32(uniforms, 136, 1/float32(width))
	putFloat32(uniforms, 140, 1/float32(height))
	for i, f := range kernel[:ssaoKernelSize*4] {
		putFloat32(uniforms, 144+i*4, f)
	}

	if err := endScenePass(dev, wc); err != nil {
		return err
	}
	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "ssao",
		Colors: []gpu.ColorAttachment{{
			Texture: target,
			Load:    gpu.LoadDontCare,
			Store:   gpu.StoreKeep,
		}},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "ssao pass unavailable, skipping", "error", err)
		return nil
	}
	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind ssao pipeline").WithCause(err)
	}
	if err := dev.BindFragmentSamplers(pass, []gpu.TextureSamplerBinding{{Texture: depth, Sampler: sampler}}); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind depth sampler").WithCause(err)
	}
	if err := dev.PushFragmentUniforms(cmd, 0, uniforms); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "push ssao uniforms").WithCause(err)
	}
	if err := dev.Draw(pass, 3, 1); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "draw ssao").WithCause(err)
	}
	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end ssao pass").WithCause(err)
	}
	return nil
}

// BloomExtract filters pixels above the luminance threshold from the HDR
// target into a half-resolution ping texture, allocating the ping/pong pair
// on first use or resize.
type BloomExtract struct {
	logger *slog.Logger
}

func (s *BloomExtract) PluginID() string { return "postfx.bloom_extract" }

func (s *BloomExtract) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	dev, okDev := wfctx.TryGet[gpu.Device](wc, keys.Device)
	cmd, okCmd := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, bloomExtractPipeline)
	hdr, okHDR := wfctx.TryGet[gpu.ID](wc, keys.HDRTexture)
	sampler, okSampler := wfctx.TryGet[gpu.ID](wc, keys.LinearSampler)
	if !okDev || !okCmd || !okPipe || !okHDR || !okSampler {
		s.logger.WarnContext(ctx, "bloom extract resources missing, skipping")
		return nil
	}

	width := wc.GetInt(keys.FrameWidth, 0)
	height := wc.GetInt(keys.FrameHeight, 0)
	if width == 0 || height == 0 {
		return nil
	}
	halfW := max(width/2, 1)
	halfH := max(height/2, 1)

	ping, _, err := ensureBloomTargets(dev, wc, halfW, halfH)
	if err != nil {
		return err
	}

	threshold := float32(1.0)
	softKnee := float32(0.5)
	uniforms := make([]byte, 16)
	putFloat32(uniforms, 0, threshold)
	putFloat32(uniforms, 4, softKnee)

	if err := endScenePass(dev, wc); err != nil {
		return err
	}
	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "bloom extract",
		Colors: []gpu.ColorAttachment{{
			Texture: ping,
			Load:    gpu.LoadDontCare,
			Store:   gpu.StoreKeep,
		}},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "bloom extract pass unavailable, skipping", "error", err)
		return nil
	}
	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind bloom extract pipeline").WithCause(err)
	}
	if err := dev.BindFragmentSamplers(pass, []gpu.TextureSamplerBinding{{Texture: hdr, Sampler: sampler}}); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind hdr sampler").WithCause(err)
	}
	if err := dev.PushFragmentUniforms(cmd, 0, uniforms); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "push bloom uniforms").WithCause(err)
	}
	if err := dev.Draw(pass, 3, 1); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "draw bloom extract").WithCause(err)
	}
	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end bloom extract pass").WithCause(err)
	}
	return nil
}

// ensureBloomTargets returns the half-resolution ping/pong pair, recreating
// both together on resize so they always match.
func ensureBloomTargets(dev gpu.Device, wc *wfctx.Context, width, height int) (gpu.ID, gpu.ID, error) {
	ping, okPing := wfctx.TryGet[gpu.ID](wc, keys.BloomPing)
	pong, okPong := wfctx.TryGet[gpu.ID](wc, keys.BloomPong)
	if okPing && okPong &&
		wc.GetInt(keys.BloomWidth, 0) == width &&
		wc.GetInt(keys.BloomHeight, 0) == height {
		return ping, pong, nil
	}
	if okPing {
		dev.ReleaseTexture(ping)
	}
	if okPong {
		dev.ReleaseTexture(pong)
	}

	desc := gpu.TextureDescriptor{
		Label:  "bloom ping",
		Width:  width,
		Height: height,
		Format: gpu.TextureRGBA16Float,
		Usage:  gpu.TextureUsageColorTarget | gpu.TextureUsageSampled,
	}
	ping, err := dev.CreateTexture(desc)
	if err != nil {
		return gpu.InvalidID, gpu.InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "create bloom ping").WithCause(err)
	}
	desc.Label = "bloom pong"
	pong, err = dev.CreateTexture(desc)
	if err != nil {
		dev.ReleaseTexture(ping)
		return gpu.InvalidID, gpu.InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "create bloom pong").WithCause(err)
	}

	wc.Set(keys.BloomPing, ping)
	wc.Set(keys.BloomPong, pong)
	wc.Set(keys.BloomWidth, width)
	wc.Set(keys.BloomHeight, height)
	return ping, pong, nil
}

// BloomBlur runs a separable gaussian blur over the extracted highlights:
// horizontal ping to pong, vertical pong back to ping. The final image is
// published as the bloom result for postfx.composite.
type BloomBlur struct {
	logger *slog.Logger
}

func (s *BloomBlur) PluginID() string { return "postfx.bloom_blur" }

func (s *BloomBlur) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	dev, okDev := wfctx.TryGet[gpu.Device](wc, keys.Device)
	cmd, okCmd := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, bloomBlurPipeline)
	ping, okPing := wfctx.TryGet[gpu.ID](wc, keys.BloomPing)
	pong, okPong := wfctx.TryGet[gpu.ID](wc, keys.BloomPong)
	sampler, okSampler := wfctx.TryGet[gpu.ID](wc, keys.LinearSampler)
	if !okDev || !okCmd || !okPipe || !okPing || !okPong || !okSampler {
		s.logger.WarnContext(ctx, "bloom blur resources missing, skipping")
		return nil
	}

	width := wc.GetInt(keys.BloomWidth, 0)
	height := wc.GetInt(keys.BloomHeight, 0)
	if width == 0 || height == 0 {
		return nil
	}

	// Horizontal: ping -> pong, then vertical: pong -> ping.
	if err := s.blurPass(ctx, dev, cmd, pipeline, ping, pong, sampler, 1/float32(width), 0); err != nil {
		return err
	}
	if err := s.blurPass(ctx, dev, cmd, pipeline, pong, ping, sampler, 0, 1/float32(height)); err != nil {
		return err
	}

	wc.Set(keys.BloomResult, ping)
	return nil
}

func (s *BloomBlur) blurPass(ctx context.Context, dev gpu.Device, cmd, pipeline, src, dst, sampler gpu.ID, dx, dy float32) error {
	uniforms := make([]byte, 16)
	putFloat32(uniforms, 0, dx)
	putFloat32(uniforms, 4, dy)

	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "bloom blur",
		Colors: []gpu.ColorAttachment{{
			Texture: dst,
			Load:    gpu.LoadDontCare,
			Store:   gpu.StoreKeep,
		}},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "bloom blur pass unavailable, skipping", "error", err)
		return nil
	}
	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind bloom blur pipeline").WithCause(err)
	}
	if err := dev.BindFragmentSamplers(pass, []gpu.TextureSamplerBinding{{Texture: src, Sampler: sampler}}); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind blur sampler").WithCause(err)
	}
	if err := dev.PushFragmentUniforms(cmd, 0, uniforms); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "push blur uniforms").WithCause(err)
	}
	if err := dev.Draw(pass, 3, 1); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "draw blur").WithCause(err)
	}
	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end blur pass").WithCause(err)
	}
	return nil
}

// Composite resolves the offscreen HDR image onto the swapchain, blending
// in SSAO and bloom when available, then submits the frame. It owns the end
// of the offscreen frame path, so it also advances the frame counter.
type Composite struct {
	logger *slog.Logger
}

func (s *Composite) PluginID() string { return "postfx.composite" }

func (s *Composite) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		wc.Set(keys.FrameSkip, false)
		return nil
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	if err := endScenePass(dev, wc); err != nil {
		return err
	}

	cmd, okCmd := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, compositePipeline)
	hdr, okHDR := wfctx.TryGet[gpu.ID](wc, keys.HDRTexture)
	sampler, okSampler := wfctx.TryGet[gpu.ID](wc, keys.LinearSampler)
	swap, okSwap := wfctx.TryGet[gpu.ID](wc, keys.SwapchainTexture)
	if !okCmd || !okPipe || !okHDR || !okSampler || !okSwap {
		s.logger.WarnContext(ctx, "composite resources missing, frame dropped")
		if okCmd {
			if err := dev.Submit(cmd); err != nil {
				return schema.NewError(schema.ErrCodeExecution, "submit incomplete frame").WithCause(err)
			}
			wc.Remove(keys.CommandBuffer)
		}
		return nil
	}

	// SSAO and bloom degrade to the HDR texture itself when absent; the
	// composite shader then sees neutral inputs.
	ssao := hdr
	if tex, ok := wfctx.TryGet[gpu.ID](wc, keys.SSAOTexture); ok {
		ssao = tex
	}
	bloom := hdr
	if tex, ok := wfctx.TryGet[gpu.ID](wc, keys.BloomResult); ok {
		bloom = tex
	}

	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "composite",
		Colors: []gpu.ColorAttachment{{
			Texture: swap,
			Load:    gpu.LoadDontCare,
			Store:   gpu.StoreKeep,
		}},
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeExecution, "begin composite pass").WithCause(err)
	}
	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind composite pipeline").WithCause(err)
	}
	bindings := []gpu.TextureSamplerBinding{
		{Texture: hdr, Sampler: sampler},
		{Texture: ssao, Sampler: sampler},
		{Texture: bloom, Sampler: sampler},
	}
	if err := dev.BindFragmentSamplers(pass, bindings); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind composite samplers").WithCause(err)
	}
	if err := dev.Draw(pass, 3, 1); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "draw composite").WithCause(err)
	}
	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end composite pass").WithCause(err)
	}
	if err := dev.Submit(cmd); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "submit frame").WithCause(err)
	}

	wc.Remove(keys.CommandBuffer)
	wc.Remove(keys.SwapchainTexture)

	frame := wc.GetInt(keys.FrameNumber, 0) + 1
	wc.Set(keys.FrameNumber, frame)
	wc.Set(keys.FrameDraws, 0)

	s.logger.DebugContext(ctx, "frame composited", "frame", frame)
	return nil
}
