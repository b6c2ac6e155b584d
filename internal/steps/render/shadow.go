package render

import (
	"context"
	"log/slog"

	"cogentcore.org/core/math32"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Unit plane geometry shared by the shadow pass, produced by
// geometry.create_plane with name "unit".
const (
	shadowPlaneVB   = "plane_unit_vb"
	shadowPlaneIB   = "plane_unit_ib"
	shadowPlaneMeta = "plane_unit"
)

// Bodies larger than this are environment geometry (floor, walls) and cast
// no shadows.
const shadowCasterMaxExtent = 15.0

// ShadowSetup allocates the shadow map and derives the light-space
// view-projection from the directional light. The shadow pipeline itself is
// built by the workflow through the shader and pipeline steps.
type ShadowSetup struct {
	logger *slog.Logger
}

func (s *ShadowSetup) PluginID() string { return "shadow.setup" }

func (s *ShadowSetup) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	mapSize := engine.ParamInt(def, "map_size", 2048)
	extent := float32(engine.ParamFloat(def, "scene_extent", 15))
	near := float32(engine.ParamFloat(def, "near_plane", 0.1))
	far := float32(engine.ParamFloat(def, "far_plane", 50))
	if mapSize <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "map_size must be > 0")
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	shadowTex, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:  "shadow map",
		Width:  mapSize,
		Height: mapSize,
		Format: gpu.TextureD32Float,
		Usage:  gpu.TextureUsageDepthTarget | gpu.TextureUsageSampled,
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "create shadow map").WithCause(err)
	}
	sampler, err := dev.CreateSampler(gpu.SamplerDescriptor{Label: "shadow", Filter: gpu.FilterNearest})
	if err != nil {
		dev.ReleaseTexture(shadowTex)
		return schema.NewError(schema.ErrCodeResourceCreation, "create shadow sampler").WithCause(err)
	}

	lightDir := math32.Vec3(0, -1, 0)
	if light, ok := wfctx.TryGet[schema.LightingState](wc, keys.LightingState); ok {
		lightDir = math32.Vec3(light.Direction[0], light.Direction[1], light.Direction[2]).Normal()
	}

	lightPos := math32.Vec3(-lightDir.X*25, -lightDir.Y*25, -lightDir.Z*25)
	up := math32.Vec3(0, 1, 0)
	if math32.Abs(lightDir.Y) > 0.99 {
		up = math32.Vec3(0, 0, 1)
	}
	lightView := math32.NewLookAt(lightPos, math32.Vec3(0, 0, 0), up)
	lightProj := orthographic(-extent, extent, -extent, extent, near, far)

	var lightVP math32.Matrix4
	lightVP.MulMatrices(&lightProj, lightView)

	wc.Set(keys.ShadowTexture, shadowTex)
	wc.Set(keys.ShadowSampler, sampler)
	wc.Set(keys.ShadowState, schema.ShadowState{
		LightVP: [16]float32(lightVP),
		MapSize: mapSize,
	})

	s.logger.InfoContext(ctx, "shadow map created", "map_size", mapSize, "extent", extent)
	return nil
}

// orthographic builds a right-handed orthographic projection with [0,1]
// clip depth, column-major.
func orthographic(left, right, bottom, top, near, far float32) math32.Matrix4 {
	m := identity()
	m[0] = 2 / (right - left)
	m[5] = 2 / (top - bottom)
	m[10] = -1 / (far - near)
	m[12] = -(right + left) / (right - left)
	m[13] = -(top + bottom) / (top - bottom)
	m[14] = -near / (far - near)
	return m
}

// faceTransform is one of the six faces a body is expanded into: a local
// offset, an orientation and the plane's scale in its two extents.
type faceTransform struct {
	offset math32.Vector3
	rot    *math32.Matrix4
	sw, sd float32
}

// ShadowPass renders every shadow-casting body into the shadow map as six
// oriented unit planes, in its own depth-only command buffer. Like the body
// pass it degrades silently when any prerequisite is missing.
type ShadowPass struct {
	logger *slog.Logger
}

func (s *ShadowPass) PluginID() string { return "shadow.pass" }

func (s *ShadowPass) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	dev, okDev := wfctx.TryGet[gpu.Device](wc, keys.Device)
	shadowTex, okTex := wfctx.TryGet[gpu.ID](wc, keys.ShadowTexture)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, shadowPipeline)
	if !okDev || !okTex || !okPipe {
		return nil
	}
	state, ok := wfctx.TryGet[schema.ShadowState](wc, keys.ShadowState)
	if !ok {
		return nil
	}
	lightVP := math32.Matrix4(state.LightVP)

	vb, okVB := wfctx.TryGet[gpu.ID](wc, shadowPlaneVB)
	ib, okIB := wfctx.TryGet[gpu.ID](wc, shadowPlaneIB)
	meta, okMeta := wfctx.TryGet[schema.MeshMetadata](wc, shadowPlaneMeta)
	if !okVB || !okIB || !okMeta || meta.IndexCount <= 0 {
		return nil
	}

	bodies := bodyNames(wc)
	if len(bodies) == 0 {
		return nil
	}

	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		return nil
	}
	pass, err := dev.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "shadow",
		Depth: &gpu.DepthAttachment{
			Texture:    shadowTex,
			Load:       gpu.LoadClear,
			Store:      gpu.StoreKeep,
			ClearDepth: 1,
		},
	})
	if err != nil {
		_ = dev.Submit(cmd)
		return nil
	}

	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind shadow pipeline").WithCause(err)
	}
	if err := dev.BindVertexBuffer(pass, 0, vb, 0); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind shadow vertex buffer").WithCause(err)
	}
	if err := dev.BindIndexBuffer(pass, ib); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind shadow index buffer").WithCause(err)
	}

	rots := faceRotations()
	for _, name := range bodies {
		transform, ok := wfctx.TryGet[schema.BodyTransform](wc, bodyTransformPrefix+name)
		if !ok {
			continue
		}
		sx, sy, sz := transform.Size[0], transform.Size[1], transform.Size[2]
		if sx == 0 && sy == 0 && sz == 0 {
			sx, sy, sz = 1, 1, 1
		}
		if sx > shadowCasterMaxExtent || sy > shadowCasterMaxExtent || sz > shadowCasterMaxExtent {
			continue
		}

		center := math32.Vec3(transform.Position[0], transform.Position[1], transform.Position[2])
		rot := math32.Quat{
			X: transform.Rotation[0], Y: transform.Rotation[1],
			Z: transform.Rotation[2], W: transform.Rotation[3],
		}
		var bodyWorld math32.Matrix4
		bodyWorld.SetTransform(center, rot, math32.Vec3(1, 1, 1))

		hx, hy, hz := sx/2, sy/2, sz/2
		faces := [6]faceTransform{
			{math32.Vec3(0, hy, 0), rots[0], sx, sz},
			{math32.Vec3(0, -hy, 0), rots[1], sx, sz},
			{math32.Vec3(0, 0, -hz), rots[2], sx, sy},
			{math32.Vec3(0, 0, hz), rots[3], sx, sy},
			{math32.Vec3(hx, 0, 0), rots[4], sz, sy},
			{math32.Vec3(-hx, 0, 0), rots[5], sz, sy},
		}

		for _, face := range faces {
			model := faceModel(&bodyWorld, &face)

			uniforms := make([]byte, 128)
			copy(uniforms, matrixBytes(&lightVP))
			copy(uniforms[64:], matrixBytes(&model))
			if err := dev.PushVertexUniforms(cmd, 0, uniforms); err != nil {
				return schema.NewError(schema.ErrCodeExecution, "push shadow uniforms").WithCause(err)
			}
			if err := dev.DrawIndexed(pass, meta.IndexCount, 1); err != nil {
				return schema.NewError(schema.ErrCodeExecution, "draw shadow face").WithCause(err)
			}
		}
	}

	if err := dev.EndRenderPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "end shadow pass").WithCause(err)
	}
	if err := dev.Submit(cmd); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "submit shadow pass").WithCause(err)
	}

	s.logger.DebugContext(ctx, "shadow pass rendered", "bodies", len(bodies))
	return nil
}

// faceModel composes bodyWorld * translate(offset) * faceRot * scale(sw,1,sd).
func faceModel(bodyWorld *math32.Matrix4, face *faceTransform) math32.Matrix4 {
	var offset math32.Matrix4
	offset.SetTransform(face.offset, math32.Quat{W: 1}, math32.Vec3(1, 1, 1))
	var scale math32.Matrix4
	scale.SetTransform(math32.Vector3{}, math32.Quat{W: 1}, math32.Vec3(face.sw, 1, face.sd))

	var a, b, out math32.Matrix4
	a.MulMatrices(bodyWorld, &offset)
	b.MulMatrices(&a, face.rot)
	out.MulMatrices(&b, &scale)
	return out
}

// faceRotations returns the six face orientations: up, down, north, south,
// east and west. East and west swap axes rather than rotate, matching the
// plane's UV layout.
func faceRotations() [6]*math32.Matrix4 {
	none := identity()
	var down, north, south math32.Matrix4
	down.SetRotationX(math32.Pi)
	north.SetRotationX(-math32.Pi / 2)
	south.SetRotationX(math32.Pi / 2)

	east := identity()
	east[0], east[1], east[2] = 0, 0, 1
	east[4], east[5], east[6] = 1, 0, 0
	east[8], east[9], east[10] = 0, 1, 0

	west := identity()
	west[0], west[1], west[2] = 0, 0, -1
	west[4], west[5], west[6] = -1, 0, 0
	west[8], west[9], west[10] = 0, 1, 0

	return [6]*math32.Matrix4{&none, &down, &north, &south, &east, &west}
}
