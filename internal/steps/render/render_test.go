package render

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/gpu/gputest"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/steps/physics"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newContext(dev gpu.Device) *wfctx.Context {
	wc := wfctx.New()
	wc.Set(keys.Device, dev)
	return wc
}

func step(plugin string, params map[string]any) *schema.StepDefinition {
	return &schema.StepDefinition{Plugin: plugin, Params: params}
}

// newColorPipeline creates a throwaway single-target pipeline and stores it
// under key.
func newColorPipeline(t *testing.T, dev *gputest.Device, wc *wfctx.Context, key string) gpu.ID {
	t.Helper()
	vs, err := dev.CreateShader(gpu.ShaderDescriptor{Label: "vs", Code: []byte{1}})
	require.NoError(t, err)
	fs, err := dev.CreateShader(gpu.ShaderDescriptor{Label: "fs", Stage: gpu.StageFragment, Code: []byte{1}})
	require.NoError(t, err)
	pipeline, err := dev.CreateRenderPipeline(gpu.PipelineDescriptor{
		Label:          key,
		VertexShader:   vs,
		FragmentShader: fs,
		ColorTargets:   []gpu.ColorTarget{{Format: gpu.TextureBGRA8Unorm}},
	})
	require.NoError(t, err)
	wc.Set(key, pipeline)
	return pipeline
}

func newDepthPipeline(t *testing.T, dev *gputest.Device, wc *wfctx.Context, key string) gpu.ID {
	t.Helper()
	vs, err := dev.CreateShader(gpu.ShaderDescriptor{Label: "vs", Code: []byte{1}})
	require.NoError(t, err)
	fs, err := dev.CreateShader(gpu.ShaderDescriptor{Label: "fs", Stage: gpu.StageFragment, Code: []byte{1}})
	require.NoError(t, err)
	pipeline, err := dev.CreateRenderPipeline(gpu.PipelineDescriptor{
		Label:          key,
		VertexShader:   vs,
		FragmentShader: fs,
		DepthFormat:    gpu.TextureD32Float,
		DepthTest:      true,
		DepthWrite:     true,
	})
	require.NoError(t, err)
	wc.Set(key, pipeline)
	return pipeline
}

func beginOffscreen(t *testing.T, wc *wfctx.Context) {
	t.Helper()
	s := &BeginOffscreen{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.begin_offscreen", nil), wc))
	require.False(t, wc.GetBool(keys.FrameSkip, true))
}

func TestCameraSetupStoresState(t *testing.T) {
	wc := wfctx.New()
	wc.Set(keys.Viewport, schema.ViewportConfig{Width: 800, Height: 600, AspectRatio: 800.0 / 600.0})

	def := step("camera.setup", map[string]any{"camera_distance": 10.0})
	def.Outputs = map[string]string{"camera_state": "camera_state"}

	s := &CameraSetup{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), def, wc))

	state, err := wfctx.Get[schema.CameraState](wc, keys.CameraState)
	require.NoError(t, err)
	bound, err := wfctx.Get[schema.CameraState](wc, "camera_state")
	require.NoError(t, err)
	assert.Equal(t, state, bound)

	// Eye at (0,0,-10) looking at the origin: the view translation moves
	// the world 10 units along the camera's forward axis.
	assert.NotEqual(t, [16]float32(identity()), state.View)
	assert.NotEqual(t, [16]float32(identity()), state.Projection)
	assert.NotZero(t, state.Projection[0])
}

func TestCameraSetupRequiresOutput(t *testing.T) {
	s := &CameraSetup{logger: discard()}
	err := s.Execute(context.Background(), step("camera.setup", nil), wfctx.New())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingBinding))
}

func TestCameraSetPoseOverridesState(t *testing.T) {
	wc := wfctx.New()
	def := step("camera.set_pose", map[string]any{
		"position": []any{0.0, 5.0, 10.0},
		"look_at":  []any{0.0, 0.0, 0.0},
	})
	def.Outputs = map[string]string{"pose": "camera.pose"}

	s := &CameraSetPose{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), def, wc))

	state, err := wfctx.Get[schema.CameraState](wc, keys.CameraState)
	require.NoError(t, err)
	assert.NotEqual(t, [16]float32{}, state.View)
	assert.True(t, wc.Has("camera.pose"))
}

func TestCameraSetPoseRejectsShortVector(t *testing.T) {
	def := step("camera.set_pose", map[string]any{"position": []any{1.0, 2.0}})
	def.Outputs = map[string]string{"pose": "camera.pose"}

	s := &CameraSetPose{logger: discard()}
	err := s.Execute(context.Background(), def, wfctx.New())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestLightingSetupDefaults(t *testing.T) {
	wc := wfctx.New()
	s := &LightingSetup{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("render.lighting.setup", nil), wc))

	state, err := wfctx.Get[schema.LightingState](wc, keys.LightingState)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{0, -1, 0}, state.Direction)
	assert.Equal(t, [3]float32{1, 1, 1}, state.Color)
	assert.InDelta(t, 1.0, state.Exposure, 1e-6)
}

func TestLightingSetupParams(t *testing.T) {
	wc := wfctx.New()
	def := step("render.lighting.setup", map[string]any{
		"direction": []any{-0.5, -1.0, -0.3},
		"exposure":  1.4,
	})
	s := &LightingSetup{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), def, wc))

	state, err := wfctx.Get[schema.LightingState](wc, keys.LightingState)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{-0.5, -1, -0.3}, state.Direction)
	assert.InDelta(t, 1.4, state.Exposure, 1e-6)
}

func TestLightingSetupRejectsZeroDirection(t *testing.T) {
	def := step("render.lighting.setup", map[string]any{"direction": []any{0.0, 0.0, 0.0}})
	s := &LightingSetup{logger: discard()}
	err := s.Execute(context.Background(), def, wfctx.New())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRenderPrepareDefaults(t *testing.T) {
	wc := wfctx.New()
	s := &RenderPrepare{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("render.prepare", nil), wc))

	view, err := wfctx.Get[math32.Matrix4](wc, keys.ViewMatrix)
	require.NoError(t, err)
	assert.Equal(t, identity(), view)

	pos, err := wfctx.Get[math32.Vector3](wc, keys.CameraPos)
	require.NoError(t, err)
	assert.Equal(t, math32.Vector3{}, pos)

	uniforms, err := wfctx.Get[FragmentUniforms](wc, keys.FragUniforms)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0, -1, 0, 0}, uniforms.LightDir)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, uniforms.LightColor)
	assert.Equal(t, [4]float32{0.8, 0, 0, 0}, uniforms.Material)

	assert.False(t, wc.Has(keys.ShadowVP))
}

func TestRenderPrepareUsesCameraAndLighting(t *testing.T) {
	wc := wfctx.New()

	// View translating the world by (-3,-4,-5): camera sits at (3,4,5).
	view := identity()
	view[12], view[13], view[14] = -3, -4, -5
	wc.Set(keys.CameraState, schema.CameraState{
		View:       [16]float32(view),
		Projection: [16]float32(identity()),
	})
	wc.Set(keys.LightingState, schema.LightingState{
		Direction: [3]float32{-0.5, -1, -0.3},
		Color:     [3]float32{1, 0.9, 0.8},
		Ambient:   [3]float32{0.1, 0.1, 0.1},
		Exposure:  1.5,
	})
	wc.Set(keys.ShadowState, schema.ShadowState{LightVP: [16]float32(identity()), MapSize: 1024})

	s := &RenderPrepare{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("render.prepare", nil), wc))

	pos, err := wfctx.Get[math32.Vector3](wc, keys.CameraPos)
	require.NoError(t, err)
	assert.InDelta(t, 3, pos.X, 1e-5)
	assert.InDelta(t, 4, pos.Y, 1e-5)
	assert.InDelta(t, 5, pos.Z, 1e-5)

	uniforms, err := wfctx.Get[FragmentUniforms](wc, keys.FragUniforms)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{-0.5, -1, -0.3, 0}, uniforms.LightDir)
	assert.Equal(t, [4]float32{1, 0.9, 0.8, 1.5}, uniforms.LightColor)

	assert.True(t, wc.Has(keys.ShadowVP))
}

func TestRenderPrepareSkippedFrameWritesNothing(t *testing.T) {
	wc := wfctx.New()
	wc.Set(keys.FrameSkip, true)
	wc.Set(keys.CameraState, schema.CameraState{View: [16]float32(identity())})

	s := &RenderPrepare{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("render.prepare", nil), wc))

	assert.False(t, wc.Has(keys.ViewMatrix))
	assert.False(t, wc.Has(keys.ProjMatrix))
	assert.False(t, wc.Has(keys.CameraPos))
	assert.False(t, wc.Has(keys.FragUniforms))
}

func TestFragmentUniformsBytes(t *testing.T) {
	u := FragmentUniforms{
		LightDir:   [4]float32{0, -1, 0, 0},
		LightColor: [4]float32{1, 1, 1, 2},
		Ambient:    [4]float32{0.2, 0.2, 0.2, 0},
		Material:   [4]float32{0.8, 0.5, 0, 0},
	}
	raw := u.Bytes()
	require.Len(t, raw, 64)
	// Exposure lives in the alpha of the second vec4.
	assert.Equal(t, float32(2), float32FromBytes(raw[28:32]))
	assert.Equal(t, float32(0.8), float32FromBytes(raw[48:52]))
}

func float32FromBytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func TestBeginOffscreenCreatesTargets(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)

	assert.True(t, wc.Has(keys.CommandBuffer))
	assert.True(t, wc.Has(keys.RenderPass))
	assert.True(t, wc.Has(keys.SwapchainTexture))
	assert.Equal(t, 800, wc.GetInt(keys.FrameWidth, 0))
	assert.Equal(t, 600, wc.GetInt(keys.FrameHeight, 0))

	hdr, err := wfctx.Get[gpu.ID](wc, keys.HDRTexture)
	require.NoError(t, err)
	desc, ok := dev.TextureDesc(hdr)
	require.True(t, ok)
	assert.Equal(t, gpu.TextureRGBA16Float, desc.Format)
	assert.NotZero(t, desc.Usage&gpu.TextureUsageSampled)

	depth, err := wfctx.Get[gpu.ID](wc, keys.DepthTexture)
	require.NoError(t, err)
	desc, ok = dev.TextureDesc(depth)
	require.True(t, ok)
	assert.Equal(t, gpu.TextureD32Float, desc.Format)
}

func TestBeginOffscreenReusesTargetsAcrossFrames(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)
	hdr, err := wfctx.Get[gpu.ID](wc, keys.HDRTexture)
	require.NoError(t, err)

	end := &FrameEndGPU{logger: discard()}
	require.NoError(t, end.Execute(context.Background(), step("frame.gpu.end", nil), wc))

	beginOffscreen(t, wc)
	again, err := wfctx.Get[gpu.ID](wc, keys.HDRTexture)
	require.NoError(t, err)
	assert.Equal(t, hdr, again)
}

func TestBeginOffscreenSwapchainUnavailable(t *testing.T) {
	dev := gputest.New()
	dev.SetSwapchainAvailable(false)
	wc := newContext(dev)

	s := &BeginOffscreen{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.begin_offscreen", nil), wc))

	assert.True(t, wc.GetBool(keys.FrameSkip, false))
	assert.False(t, wc.Has(keys.RenderPass))
	assert.Equal(t, 1, dev.Submitted())
}

func TestFrameEndGPUAdvancesCounter(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	begin := &FrameBeginGPU{logger: discard()}
	require.NoError(t, begin.Execute(context.Background(), step("frame.gpu.begin", nil), wc))
	require.False(t, wc.GetBool(keys.FrameSkip, true))

	end := &FrameEndGPU{logger: discard()}
	require.NoError(t, end.Execute(context.Background(), step("frame.gpu.end", nil), wc))

	assert.Equal(t, 1, wc.GetInt(keys.FrameNumber, 0))
	assert.False(t, wc.Has(keys.CommandBuffer))
	assert.False(t, wc.Has(keys.RenderPass))
	assert.Equal(t, 1, dev.Submitted())
}

func TestFrameEndGPUSkippedFrameResetsFlag(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	wc.Set(keys.FrameSkip, true)

	end := &FrameEndGPU{logger: discard()}
	require.NoError(t, end.Execute(context.Background(), step("frame.gpu.end", nil), wc))

	assert.False(t, wc.GetBool(keys.FrameSkip, true))
	assert.Equal(t, 0, wc.GetInt(keys.FrameNumber, 0))
}

func sceneBuffers(t *testing.T, dev *gputest.Device, wc *wfctx.Context) {
	t.Helper()
	vb, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "vb", Kind: gpu.BufferVertex, Size: 128})
	require.NoError(t, err)
	ib, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "ib", Kind: gpu.BufferIndex, Size: 72})
	require.NoError(t, err)
	wc.Set(keys.VertexBuffer, vb)
	wc.Set(keys.IndexBuffer, ib)
}

func TestDrawBodiesDrawsVisibleBodies(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, scenePipeline)
	sceneBuffers(t, dev, wc)

	wc.Set(keys.PhysicsBodies, []string{"crate", "ghost", "orphan"})
	wc.Set(bodyTransformPrefix+"crate", schema.BodyTransform{
		Position: [3]float32{0, 1, 0},
		Rotation: [4]float32{0, 0, 0, 1},
	})
	wc.Set(bodyTransformPrefix+"ghost", schema.BodyTransform{
		Rotation: [4]float32{0, 0, 0, 1},
	})
	wc.Set(bodyVisualPrefix+"ghost", schema.BodyVisual{Visible: false})
	// "orphan" has no transform record and is skipped.

	s := &DrawBodies{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.draw_bodies", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 36, draws[0].IndexCount)
	assert.Len(t, draws[0].VertexUniform, 64)
	assert.Equal(t, 1, wc.GetInt(keys.FrameDraws, 0))
	assert.InDelta(t, 1.0/60.0, wc.GetFloat(keys.FrameElapsed, 0), 1e-9)
}

func TestDrawBodiesDrawsAddedBody(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, scenePipeline)
	sceneBuffers(t, dev, wc)

	add := physics.Steps(discard())
	require.Len(t, add, 1)
	def := step("physics.body.add", map[string]any{"name": "crate", "pos_y": 1.0})
	require.NoError(t, add[0].Execute(context.Background(), def, wc))

	s := &DrawBodies{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.draw_bodies", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 36, draws[0].IndexCount)
}

func TestDrawBodiesWithoutPipelineIsNoop(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)
	sceneBuffers(t, dev, wc)
	wc.Set(keys.PhysicsBodies, []string{"crate"})
	wc.Set(bodyTransformPrefix+"crate", schema.BodyTransform{Rotation: [4]float32{0, 0, 0, 1}})

	s := &DrawBodies{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.draw_bodies", nil), wc))
	assert.Empty(t, dev.Draws())
}

func TestDrawBodiesSkippedFrame(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	wc.Set(keys.FrameSkip, true)
	wc.Set(keys.PhysicsBodies, []string{"crate"})

	s := &DrawBodies{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("frame.gpu.draw_bodies", nil), wc))
	assert.Empty(t, dev.Draws())
}

func TestPostFXSetupCreatesResourcesOnce(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	s := &PostFXSetup{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.setup", nil), wc))

	assert.True(t, wc.Has(keys.LinearSampler))
	assert.True(t, wc.Has(keys.NearestSampler))
	assert.True(t, wc.GetBool(keys.PostFXInitialized, false))

	kernel, err := wfctx.Get[[]float32](wc, keys.SSAOKernel)
	require.NoError(t, err)
	require.Len(t, kernel, 64)
	for i := 3; i < 64; i += 4 {
		assert.Zero(t, kernel[i], "kernel padding at %d", i)
	}
	for i := 0; i < 16; i++ {
		z := kernel[i*4+2]
		assert.GreaterOrEqual(t, z, float32(0), "hemisphere sample %d", i)
	}

	before := dev.ResourceCount()
	require.NoError(t, s.Execute(context.Background(), step("postfx.setup", nil), wc))
	assert.Equal(t, before, dev.ResourceCount())
}

func TestSSAOKernelDeterministic(t *testing.T) {
	assert.Equal(t, ssaoKernel(), ssaoKernel())
}

func TestSSAORendersFullscreenPass(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	setup := &PostFXSetup{logger: discard()}
	require.NoError(t, setup.Execute(context.Background(), step("postfx.setup", nil), wc))
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, ssaoPipeline)
	wc.Set(keys.ProjMatrix, identity())

	s := &SSAO{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.ssao", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 3, draws[0].VertexCount)
	assert.Len(t, draws[0].FragUniform, 400)

	ssaoTex, err := wfctx.Get[gpu.ID](wc, keys.SSAOTexture)
	require.NoError(t, err)
	desc, ok := dev.TextureDesc(ssaoTex)
	require.True(t, ok)
	assert.Equal(t, gpu.TextureR8Unorm, desc.Format)
	assert.Equal(t, ssaoTex, draws[0].Target)
}

func TestSSAOSingularProjectionFallsBackToIdentity(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	setup := &PostFXSetup{logger: discard()}
	require.NoError(t, setup.Execute(context.Background(), step("postfx.setup", nil), wc))
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, ssaoPipeline)
	wc.Set(keys.ProjMatrix, math32.Matrix4{}) // non-invertible

	s := &SSAO{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.ssao", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	id := identity()
	assert.Equal(t, matrixBytes(&id), draws[0].FragUniform[64:128])
}

func TestSSAOMissingPipelineSkips(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)

	s := &SSAO{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.ssao", nil), wc))
	assert.Empty(t, dev.Draws())
}

func TestBloomExtractAndBlur(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	setup := &PostFXSetup{logger: discard()}
	require.NoError(t, setup.Execute(context.Background(), step("postfx.setup", nil), wc))
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, bloomExtractPipeline)
	newColorPipeline(t, dev, wc, bloomBlurPipeline)

	extract := &BloomExtract{logger: discard()}
	require.NoError(t, extract.Execute(context.Background(), step("postfx.bloom_extract", nil), wc))

	ping, err := wfctx.Get[gpu.ID](wc, keys.BloomPing)
	require.NoError(t, err)
	desc, ok := dev.TextureDesc(ping)
	require.True(t, ok)
	assert.Equal(t, 400, desc.Width)
	assert.Equal(t, 300, desc.Height)
	assert.Equal(t, gpu.TextureRGBA16Float, desc.Format)

	blur := &BloomBlur{logger: discard()}
	require.NoError(t, blur.Execute(context.Background(), step("postfx.bloom_blur", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 3) // extract + horizontal + vertical
	pong, err := wfctx.Get[gpu.ID](wc, keys.BloomPong)
	require.NoError(t, err)
	assert.Equal(t, pong, draws[1].Target)
	assert.Equal(t, ping, draws[2].Target)

	result, err := wfctx.Get[gpu.ID](wc, keys.BloomResult)
	require.NoError(t, err)
	assert.Equal(t, ping, result)
}

func TestCompositeSubmitsAndAdvancesFrame(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	setup := &PostFXSetup{logger: discard()}
	require.NoError(t, setup.Execute(context.Background(), step("postfx.setup", nil), wc))
	beginOffscreen(t, wc)
	newColorPipeline(t, dev, wc, compositePipeline)

	s := &Composite{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.composite", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 3, draws[0].VertexCount)
	require.Len(t, draws[0].Samplers, 3)
	hdr, err := wfctx.Get[gpu.ID](wc, keys.HDRTexture)
	require.NoError(t, err)
	assert.Equal(t, hdr, draws[0].Samplers[0].Texture)
	// Without SSAO and bloom results the HDR texture stands in for both.
	assert.Equal(t, hdr, draws[0].Samplers[1].Texture)
	assert.Equal(t, hdr, draws[0].Samplers[2].Texture)

	assert.Equal(t, 1, wc.GetInt(keys.FrameNumber, 0))
	assert.False(t, wc.Has(keys.CommandBuffer))
	assert.False(t, wc.Has(keys.SwapchainTexture))
	assert.False(t, wc.Has(keys.RenderPass))
	assert.Equal(t, 1, dev.Submitted())
}

func TestCompositeMissingPipelineDropsFrame(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	beginOffscreen(t, wc)

	s := &Composite{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("postfx.composite", nil), wc))

	assert.Empty(t, dev.Draws())
	assert.False(t, wc.Has(keys.CommandBuffer))
	assert.Equal(t, 0, wc.GetInt(keys.FrameNumber, 0))
	assert.Equal(t, 1, dev.Submitted())
}

func TestShadowSetupBuildsState(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	wc.Set(keys.LightingState, schema.LightingState{Direction: [3]float32{-0.5, -1, -0.3}})

	s := &ShadowSetup{logger: discard()}
	def := step("shadow.setup", map[string]any{"map_size": 512.0})
	require.NoError(t, s.Execute(context.Background(), def, wc))

	state, err := wfctx.Get[schema.ShadowState](wc, keys.ShadowState)
	require.NoError(t, err)
	assert.Equal(t, 512, state.MapSize)
	assert.NotEqual(t, [16]float32(identity()), state.LightVP)

	tex, err := wfctx.Get[gpu.ID](wc, keys.ShadowTexture)
	require.NoError(t, err)
	desc, ok := dev.TextureDesc(tex)
	require.True(t, ok)
	assert.Equal(t, 512, desc.Width)
	assert.Equal(t, gpu.TextureD32Float, desc.Format)
	assert.True(t, wc.Has(keys.ShadowSampler))
}

func TestOrthographicProjection(t *testing.T) {
	m := orthographic(-15, 15, -15, 15, 0.1, 50)
	assert.InDelta(t, 1.0/15.0, m[0], 1e-6)
	assert.InDelta(t, 1.0/15.0, m[5], 1e-6)
	assert.InDelta(t, -1.0/49.9, m[10], 1e-6)
	assert.InDelta(t, 0, m[12], 1e-6)
	assert.InDelta(t, -0.1/49.9, m[14], 1e-6)
	assert.InDelta(t, 1, m[15], 1e-6)
}

func TestShadowPassDrawsSixFacesPerCaster(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)

	setup := &ShadowSetup{logger: discard()}
	require.NoError(t, setup.Execute(context.Background(), step("shadow.setup", nil), wc))
	newDepthPipeline(t, dev, wc, shadowPipeline)

	vb, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "plane vb", Kind: gpu.BufferVertex, Size: 80})
	require.NoError(t, err)
	ib, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "plane ib", Kind: gpu.BufferIndex, Size: 12})
	require.NoError(t, err)
	wc.Set(shadowPlaneVB, vb)
	wc.Set(shadowPlaneIB, ib)
	wc.Set(shadowPlaneMeta, schema.MeshMetadata{VertexCount: 4, IndexCount: 6, Stride: 20, Valid: true})

	wc.Set(keys.PhysicsBodies, []string{"crate", "floor"})
	wc.Set(bodyTransformPrefix+"crate", schema.BodyTransform{
		Position: [3]float32{0, 1, 0},
		Rotation: [4]float32{0, 0, 0, 1},
		Size:     [3]float32{1, 1, 1},
	})
	// The floor exceeds the caster extent and is skipped.
	wc.Set(bodyTransformPrefix+"floor", schema.BodyTransform{
		Rotation: [4]float32{0, 0, 0, 1},
		Size:     [3]float32{30, 1, 30},
	})

	s := &ShadowPass{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("shadow.pass", nil), wc))

	draws := dev.Draws()
	require.Len(t, draws, 6)
	shadowTex, err := wfctx.Get[gpu.ID](wc, keys.ShadowTexture)
	require.NoError(t, err)
	for _, d := range draws {
		assert.Equal(t, 6, d.IndexCount)
		assert.Len(t, d.VertexUniform, 128)
		assert.Equal(t, shadowTex, d.Target)
	}
	assert.Equal(t, 1, dev.Submitted())
}

func TestShadowPassWithoutStateIsNoop(t *testing.T) {
	dev := gputest.New()
	wc := newContext(dev)
	wc.Set(keys.PhysicsBodies, []string{"crate"})

	s := &ShadowPass{logger: discard()}
	require.NoError(t, s.Execute(context.Background(), step("shadow.pass", nil), wc))
	assert.Empty(t, dev.Draws())
	assert.Equal(t, 0, dev.Submitted())
}
