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

// drawCallCounter is the context key for the monotonic draw call id.
const drawCallCounter = "draw.call_counter"

// DrawSubmit binds the pipeline plus vertex and index buffers and records
// one indexed draw into the open render pass. On a skipped frame the step
// is a no-op.
type DrawSubmit struct {
	logger *slog.Logger
}

func (s *DrawSubmit) PluginID() string { return "graphics.draw.submit" }

func (s *DrawSubmit) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	programKey, err := engine.InputKey(def, "program")
	if err != nil {
		return err
	}
	vertexHandleKey, err := engine.InputKey(def, "vertex_handle")
	if err != nil {
		return err
	}
	indexHandleKey, err := engine.InputKey(def, "index_handle")
	if err != nil {
		return err
	}
	indexCountKey, err := engine.InputKey(def, "index_count")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "draw_call_id")
	if err != nil {
		return err
	}
	if wc.GetBool(keys.FrameSkip, false) {
		s.logger.DebugContext(ctx, "frame skipped, draw dropped")
		return nil
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	pass, err := wfctx.Get[gpu.ID](wc, keys.RenderPass)
	if err != nil {
		return err
	}
	pipeline, err := wfctx.Get[gpu.ID](wc, programKey)
	if err != nil {
		return err
	}
	vertexBuffer, err := wfctx.Get[gpu.ID](wc, keys.VertexBuffer)
	if err != nil {
		return err
	}
	indexBuffer, err := wfctx.Get[gpu.ID](wc, keys.IndexBuffer)
	if err != nil {
		return err
	}

	if handle, ok := wfctx.TryGet[map[string]any](wc, vertexHandleKey); ok {
		if valid, ok := handle["valid"].(bool); ok && !valid {
			return schema.NewError(schema.ErrCodeValidation, "vertex handle is invalid")
		}
	}

	indexCount := wc.GetInt(indexCountKey, 0)
	if indexCount == 0 {
		// Fall back to the index handle record.
		if handle, ok := wfctx.TryGet[map[string]any](wc, indexHandleKey); ok {
			if n, ok := handle["index_count"].(int); ok {
				indexCount = n
			}
		}
		if meta, ok := wfctx.TryGet[schema.MeshMetadata](wc, indexHandleKey); ok {
			indexCount = meta.IndexCount
		}
	}
	if indexCount <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "index_count must be > 0")
	}

	if err := dev.BindPipeline(pass, pipeline); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind pipeline").WithCause(err)
	}
	if err := dev.BindVertexBuffer(pass, 0, vertexBuffer, 0); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind vertex buffer").WithCause(err)
	}
	if err := dev.BindIndexBuffer(pass, indexBuffer); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "bind index buffer").WithCause(err)
	}
	if err := dev.DrawIndexed(pass, indexCount, 1); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "draw indexed").WithCause(err)
	}

	drawID := wc.GetInt(drawCallCounter, 0)
	wc.Set(drawCallCounter, drawID+1)
	wc.Set(keys.FrameDraws, wc.GetInt(keys.FrameDraws, 0)+1)
	wc.Set(outKey, map[string]any{
		"draw_call_id": drawID,
		"index_count":  indexCount,
	})

	s.logger.DebugContext(ctx, "draw submitted", "draw_call_id", drawID, "index_count", indexCount)
	return nil
}
