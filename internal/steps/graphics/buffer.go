package graphics

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// CreateVertexBuffer uploads a float vertex stream from the context into a
// new device vertex buffer.
type CreateVertexBuffer struct {
	logger *slog.Logger
}

func (s *CreateVertexBuffer) PluginID() string { return "graphics.buffer.create_vertex" }

func (s *CreateVertexBuffer) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	verticesKey, err := engine.InputKey(def, "vertices")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "vertex_handle")
	if err != nil {
		return err
	}

	raw, ok := wc.Get(verticesKey)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", verticesKey)
	}
	floats, err := asFloats(raw)
	if err != nil {
		return err
	}
	if len(floats) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "vertices array is empty")
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	data := make([]byte, 0, len(floats)*4)
	for _, f := range floats {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(f)))
	}

	buf, err := gpu.UploadBuffer(dev, "vertex data", gpu.BufferVertex, data)
	if err != nil {
		return err
	}

	wc.Set(keys.VertexBuffer, buf)
	wc.Set(outKey, map[string]any{
		"valid":        true,
		"vertex_count": len(floats) / 3,
		"size_bytes":   len(data),
	})

	s.logger.InfoContext(ctx, "vertex buffer created", "vertex_count", len(floats)/3)
	return nil
}

// CreateIndexBuffer uploads a 16-bit index stream from the context into a
// new device index buffer.
type CreateIndexBuffer struct {
	logger *slog.Logger
}

func (s *CreateIndexBuffer) PluginID() string { return "graphics.buffer.create_index" }

func (s *CreateIndexBuffer) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	indicesKey, err := engine.InputKey(def, "indices")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "index_handle")
	if err != nil {
		return err
	}

	raw, ok := wc.Get(indicesKey)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", indicesKey)
	}
	values, err := asFloats(raw)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "indices array is empty")
	}

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	data := make([]byte, 0, len(values)*2)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint16(data, uint16(v))
	}

	buf, err := gpu.UploadBuffer(dev, "index data", gpu.BufferIndex, data)
	if err != nil {
		return err
	}

	wc.Set(keys.IndexBuffer, buf)
	wc.Set(outKey, map[string]any{
		"valid":       true,
		"index_count": len(values),
		"size_bytes":  len(data),
	})

	s.logger.InfoContext(ctx, "index buffer created", "index_count", len(values))
	return nil
}

// BufferUpload pushes precomputed vertex bytes and 16-bit indices from the
// context through one combined transfer into fresh device buffers. Failures
// propagate; the step still records geometry_created=false so downstream
// draw steps can degrade.
type BufferUpload struct {
	logger *slog.Logger
}

func (s *BufferUpload) PluginID() string { return "graphics.buffer.upload" }

func (s *BufferUpload) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	vertexDataKey := engine.ParamString(def, "vertex_data_key", "vertex_data")
	indexDataKey := engine.ParamString(def, "index_data_key", "index_data")
	vertexBufferKey := engine.ParamString(def, "vertex_buffer_key", keys.VertexBuffer)
	indexBufferKey := engine.ParamString(def, "index_buffer_key", keys.IndexBuffer)
	stride := engine.ParamInt(def, "vertex_stride", 16)

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	vertexBytes, err := contextBytes(wc, vertexDataKey)
	if err != nil {
		wc.Set(keys.GeometryCreated, false)
		return err
	}
	indexBytes, err := contextIndexBytes(wc, indexDataKey)
	if err != nil {
		wc.Set(keys.GeometryCreated, false)
		return err
	}

	buffers, err := gpu.UploadMesh(dev, "mesh upload", vertexBytes, indexBytes)
	if err != nil {
		wc.Set(keys.GeometryCreated, false)
		return err
	}

	wc.Set(vertexBufferKey, buffers.Vertex)
	wc.Set(indexBufferKey, buffers.Index)

	vertexCount := len(vertexBytes) / stride
	indexCount := len(indexBytes) / 2
	wc.Set(keys.CubeMesh, schema.MeshMetadata{
		VertexCount: vertexCount,
		IndexCount:  indexCount,
		Stride:      stride,
		Valid:       true,
	})
	wc.Set(keys.GeometryCreated, true)

	s.logger.InfoContext(ctx, "mesh uploaded",
		"vertices", vertexCount, "indices", indexCount, "stride", stride)
	return nil
}

// asFloats accepts the numeric list shapes a workflow document can produce.
func asFloats(v any) ([]float64, error) {
	switch list := v.(type) {
	case []float64:
		return list, nil
	case []float32:
		out := make([]float64, len(list))
		for i, f := range list {
			out[i] = float64(f)
		}
		return out, nil
	case []int:
		out := make([]float64, len(list))
		for i, n := range list {
			out[i] = float64(n)
		}
		return out, nil
	case []any:
		out := make([]float64, len(list))
		for i, e := range list {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			default:
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"element %d is %T, want a number", i, e)
			}
		}
		return out, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expected a numeric list, got %T", v)
	}
}

func contextBytes(wc *wfctx.Context, key string) ([]byte, error) {
	raw, ok := wc.Get(key)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}
	if b, ok := raw.([]byte); ok {
		if len(b) == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%q is empty", key)
		}
		return b, nil
	}
	values, err := asFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%q is empty", key)
	}
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(int(v))
	}
	return out, nil
}

func contextIndexBytes(wc *wfctx.Context, key string) ([]byte, error) {
	raw, ok := wc.Get(key)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}
	if b, ok := raw.([]byte); ok {
		if len(b) == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%q is empty", key)
		}
		return b, nil
	}
	values, err := asFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%q is empty", key)
	}
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint16(out, uint16(v))
	}
	return out, nil
}
