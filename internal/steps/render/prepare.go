package render

import (
	"context"
	"log/slog"

	"cogentcore.org/core/math32"

	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// FragmentUniforms is the 64-byte fragment uniform block shared by the body
// and composite shaders. Four vec4 slots, std140 compatible: light direction
// (w unused), light color with exposure in alpha, ambient color, then
// material roughness and metallic.
type FragmentUniforms struct {
	LightDir   [4]float32
	LightColor [4]float32
	Ambient    [4]float32
	Material   [4]float32
}

// Bytes encodes the block as 64 little-endian bytes.
func (u *FragmentUniforms) Bytes() []byte {
	out := make([]byte, 64)
	off := 0
	for _, vec := range [4][4]float32{u.LightDir, u.LightColor, u.Ambient, u.Material} {
		for _, f := range vec {
			putFloat32(out, off, f)
			off += 4
		}
	}
	return out
}

// RenderPrepare derives the frame's shared rendering state from the camera,
// lighting and shadow records: view/projection matrices, world-space camera
// position and the fragment uniform block. Absent records fall back to
// identity matrices and a plain downward white light, so the draw steps
// always have something to work with.
type RenderPrepare struct {
	logger *slog.Logger
}

func (s *RenderPrepare) PluginID() string { return "render.prepare" }

func (s *RenderPrepare) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	view := identity()
	proj := identity()
	if cam, ok := wfctx.TryGet[schema.CameraState](wc, keys.CameraState); ok {
		view = math32.Matrix4(cam.View)
		proj = math32.Matrix4(cam.Projection)
	}

	// Camera world position is the translation column of the inverse view.
	cameraPos := math32.Vector3{}
	if inv, err := view.Inverse(); err == nil {
		cameraPos = math32.Vec3(inv[12], inv[13], inv[14])
	}

	uniforms := FragmentUniforms{
		LightDir:   [4]float32{0, -1, 0, 0},
		LightColor: [4]float32{1, 1, 1, 1},
		Ambient:    [4]float32{0.2, 0.2, 0.2, 0},
		Material:   [4]float32{0.8, 0, 0, 0},
	}
	if light, ok := wfctx.TryGet[schema.LightingState](wc, keys.LightingState); ok {
		uniforms.LightDir = [4]float32{light.Direction[0], light.Direction[1], light.Direction[2], 0}
		uniforms.LightColor = [4]float32{light.Color[0], light.Color[1], light.Color[2], light.Exposure}
		uniforms.Ambient = [4]float32{light.Ambient[0], light.Ambient[1], light.Ambient[2], 0}
	}

	wc.Set(keys.ViewMatrix, view)
	wc.Set(keys.ProjMatrix, proj)
	wc.Set(keys.CameraPos, cameraPos)
	wc.Set(keys.FragUniforms, uniforms)

	if shadow, ok := wfctx.TryGet[schema.ShadowState](wc, keys.ShadowState); ok {
		wc.Set(keys.ShadowVP, math32.Matrix4(shadow.LightVP))
	}

	s.logger.DebugContext(ctx, "render state prepared", "camera_pos", cameraPos)
	return nil
}
