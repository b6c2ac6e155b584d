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

// PipelineCreate bakes compiled shaders into a render pipeline. Vertex input
// comes from a named preset rather than per-attribute parameters; the presets
// cover the three layouts the generators emit.
type PipelineCreate struct {
	logger *slog.Logger
}

func (s *PipelineCreate) PluginID() string { return "graphics.gpu.pipeline.create" }

func (s *PipelineCreate) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	vertexKey := engine.ParamString(def, "vertex_shader_key", "vertex_shader")
	fragmentKey := engine.ParamString(def, "fragment_shader_key", "fragment_shader")
	vertexFormat := engine.ParamString(def, "vertex_format", "position_color")
	pipelineKey := engine.ParamString(def, "pipeline_key", "gpu_pipeline")
	depthWrite := engine.ParamBool(def, "depth_write", true)
	depthTest := engine.ParamBool(def, "depth_test", true)
	cullStr := engine.ParamString(def, "cull_mode", "back")
	depthBias := engine.ParamFloat(def, "depth_bias", 0)
	colorTargets := engine.ParamInt(def, "num_color_targets", 1)
	depthFormatStr := engine.ParamString(def, "depth_format", "d32_float")
	colorFormatStr := engine.ParamString(def, "color_format", "swapchain")
	releaseShaders := engine.ParamBool(def, "release_shaders", true)
	hasDepth := engine.ParamBool(def, "has_depth", true)

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}
	vertexShader, err := wfctx.Get[gpu.ID](wc, vertexKey)
	if err != nil {
		return err
	}
	fragmentShader, err := wfctx.Get[gpu.ID](wc, fragmentKey)
	if err != nil {
		return err
	}

	desc := gpu.PipelineDescriptor{
		Label:          pipelineKey,
		VertexShader:   vertexShader,
		FragmentShader: fragmentShader,
		Layout:         vertexPreset(vertexFormat),
		Cull:           cullModeFor(cullStr),
		DepthTest:      depthTest,
		DepthWrite:     depthWrite,
		DepthBias:      float32(depthBias),
	}
	if hasDepth {
		desc.DepthFormat = depthFormatFor(depthFormatStr)
	}
	for i := 0; i < colorTargets; i++ {
		desc.ColorTargets = append(desc.ColorTargets, gpu.ColorTarget{
			Format: colorFormatFor(colorFormatStr),
		})
	}

	pipeline, err := dev.CreateRenderPipeline(desc)

	// Shaders are baked into the pipeline; drop them unless told otherwise.
	if releaseShaders {
		dev.ReleaseShader(vertexShader)
		dev.ReleaseShader(fragmentShader)
		wc.Remove(vertexKey)
		wc.Remove(fragmentKey)
	}

	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "create render pipeline").WithCause(err)
	}
	wc.Set(pipelineKey, pipeline)

	s.logger.InfoContext(ctx, "pipeline created",
		"key", pipelineKey, "vertex_format", vertexFormat,
		"cull", cullStr, "color_targets", colorTargets)
	return nil
}

func vertexPreset(name string) gpu.VertexLayout {
	switch name {
	case "none":
		// Fullscreen triangle, vertex id only.
		return gpu.VertexLayout{}
	case "position_uv":
		return gpu.VertexLayout{
			Stride: 20,
			Attributes: []gpu.VertexAttribute{
				{Location: 0, Format: gpu.AttrFloat32x3, Offset: 0},
				{Location: 1, Format: gpu.AttrFloat32x2, Offset: 12},
			},
		}
	default: // position_color
		return gpu.VertexLayout{
			Stride: 16,
			Attributes: []gpu.VertexAttribute{
				{Location: 0, Format: gpu.AttrFloat32x3, Offset: 0},
				{Location: 1, Format: gpu.AttrUnorm8x4, Offset: 12},
			},
		}
	}
}

func cullModeFor(name string) gpu.CullMode {
	switch name {
	case "front":
		return gpu.CullFront
	case "none":
		return gpu.CullNone
	default:
		return gpu.CullBack
	}
}

func depthFormatFor(name string) gpu.TextureFormat {
	if name == "d24_unorm_s8" {
		return gpu.TextureD24UnormS8
	}
	return gpu.TextureD32Float
}

func colorFormatFor(name string) gpu.TextureFormat {
	switch name {
	case "rgba16_float":
		return gpu.TextureRGBA16Float
	case "r8_unorm":
		return gpu.TextureR8Unorm
	case "b8g8r8a8_unorm":
		return gpu.TextureBGRA8Unorm
	default:
		// "swapchain": the headless swapchain is BGRA8.
		return gpu.TextureBGRA8Unorm
	}
}
