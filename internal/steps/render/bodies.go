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

// Shorthand for the per-body records written by the physics adapter and the
// scene setup.
const (
	bodyVisualPrefix    = keys.BodyVisualPrefix
	bodyTransformPrefix = keys.BodyTransformPrefix
)

const cubeIndexCount = 36

// DrawBodies renders every physics body as a unit cube transformed by its
// simulated pose. The step degrades silently: if the frame is skipped or
// any of the pass, pipeline or geometry handles is absent it draws nothing,
// so a workflow can run the same frame script with or without a scene.
type DrawBodies struct {
	logger *slog.Logger
}

func (s *DrawBodies) PluginID() string { return "frame.gpu.draw_bodies" }

func (s *DrawBodies) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if wc.GetBool(keys.FrameSkip, false) {
		return nil
	}

	dev, ok := wfctx.TryGet[gpu.Device](wc, keys.Device)
	if !ok {
		return nil
	}
	pass, okPass := wfctx.TryGet[gpu.ID](wc, keys.RenderPass)
	cmd, okCmd := wfctx.TryGet[gpu.ID](wc, keys.CommandBuffer)
	pipeline, okPipe := wfctx.TryGet[gpu.ID](wc, scenePipeline)
	vb, okVB := wfctx.TryGet[gpu.ID](wc, keys.VertexBuffer)
	ib, okIB := wfctx.TryGet[gpu.ID](wc, keys.IndexBuffer)
	if !okPass || !okCmd || !okPipe || !okVB || !okIB {
		return nil
	}

	view, okView := wfctx.TryGet[math32.Matrix4](wc, keys.ViewMatrix)
	proj, okProj := wfctx.TryGet[math32.Matrix4](wc, keys.ProjMatrix)
	if !okView {
		view = identity()
	}
	if !okProj {
		proj = identity()
	}
	var viewProj math32.Matrix4
	viewProj.MulMatrices(&proj, &view)

	bodies := bodyNames(wc)
	if len(bodies) == 0 {
		return nil
	}

	elapsed := float32(wc.GetFloat(keys.FrameElapsed, 0))

	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind pipeline").WithCause(err)
	}
	if err := dev.BindVertexBuffer(pass, 0, vb, 0); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind vertex buffer").WithCause(err)
	}
	if err := dev.BindIndexBuffer(pass, ib); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind index buffer").WithCause(err)
	}

	draws := 0
	for _, name := range bodies {
		transform, ok := wfctx.TryGet[schema.BodyTransform](wc, bodyTransformPrefix+name)
		if !ok {
			continue
		}
		visual := bodyVisual(wc, name)
		if !visual.Visible {
			continue
		}

		model := bodyModel(&transform, &visual, elapsed)
		var mvp math32.Matrix4
		mvp.MulMatrices(&viewProj, &model)

		if err := dev.PushVertexUniforms(cmd, 0, matrixBytes(&mvp)); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "push body uniforms").WithCause(err)
		}
		if err := dev.DrawIndexed(pass, cubeIndexCount, 1); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "draw body").WithCause(err)
		}
		draws++
	}

	wc.Set(keys.FrameDraws, wc.GetInt(keys.FrameDraws, 0)+draws)
	wc.Set(keys.FrameElapsed, float64(elapsed)+1.0/60.0)

	s.logger.DebugContext(ctx, "bodies drawn", "count", draws)
	return nil
}

// bodyModel composes translate * rotate * spin * scale for one body.
func bodyModel(t *schema.BodyTransform, v *schema.BodyVisual, elapsed float32) math32.Matrix4 {
	pos := math32.Vec3(t.Position[0], t.Position[1], t.Position[2])
	rot := math32.Quat{X: t.Rotation[0], Y: t.Rotation[1], Z: t.Rotation[2], W: t.Rotation[3]}

	var model math32.Matrix4
	model.SetTransform(pos, rot, math32.Vec3(1, 1, 1))

	if v.Spinning {
		var spinX, spinY, a, b math32.Matrix4
		spinX.SetRotationX(elapsed * v.SpinSpeedX)
		spinY.SetRotationY(elapsed * v.SpinSpeedY)
		a.MulMatrices(&model, &spinX)
		b.MulMatrices(&a, &spinY)
		model = b
	}

	var scale math32.Matrix4
	scale.SetTransform(math32.Vector3{}, math32.Quat{W: 1}, math32.Vec3(v.Scale[0], v.Scale[1], v.Scale[2]))
	var out math32.Matrix4
	out.MulMatrices(&model, &scale)
	return out
}

// bodyVisual returns the visual record for a body, filling in defaults for
// absent records and unset fields.
func bodyVisual(wc *wfctx.Context, name string) schema.BodyVisual {
	visual, ok := wfctx.TryGet[schema.BodyVisual](wc, bodyVisualPrefix+name)
	if !ok {
		return schema.BodyVisual{
			Visible:    true,
			SpinSpeedX: 1,
			SpinSpeedY: 0.7,
			Scale:      [3]float32{0.5, 0.5, 0.5},
		}
	}
	if visual.SpinSpeedX == 0 {
		visual.SpinSpeedX = 1
	}
	if visual.SpinSpeedY == 0 {
		visual.SpinSpeedY = 0.7
	}
	if visual.Scale == ([3]float32{}) {
		visual.Scale = [3]float32{0.5, 0.5, 0.5}
	}
	return visual
}

// bodyNames reads the physics body list, accepting either string or any
// slices since the list may come from JSON.
func bodyNames(wc *wfctx.Context) []string {
	raw, ok := wc.Get(keys.PhysicsBodies)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
