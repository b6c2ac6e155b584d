package graphics

import (
	"context"
	"log/slog"
	"os"

	"github.com/mitchellh/go-homedir"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// ShaderCompile loads a shader binary and creates the device shader object.
// The binary format and entry point follow the device backend: SPIRV with
// "main" on Vulkan, MSL with "main0" on Metal, DXIL with "main" on DX12.
type ShaderCompile struct {
	logger *slog.Logger
}

func (s *ShaderCompile) PluginID() string { return "graphics.gpu.shader.compile" }

func (s *ShaderCompile) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	path := engine.ParamString(def, "shader_path", "")
	if path == "" {
		// JSON workflows bind the path through an input instead.
		if key, ok := engine.OptionalInputKey(def, "shader_path"); ok {
			path = wc.GetString(key, "")
		}
	}
	if path == "" {
		return schema.NewError(schema.ErrCodeValidation,
			"a 'shader_path' param or input is required")
	}

	stageStr := engine.ParamString(def, "stage", "vertex")
	stage := gpu.StageVertex
	if stageStr == "fragment" {
		stage = gpu.StageFragment
	}
	uniformBuffers := engine.ParamInt(def, "num_uniform_buffers", 0)
	samplers := engine.ParamInt(def, "num_samplers", 0)
	outputKey := engine.ParamString(def, "output_key", "compiled_shader")

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	resolved, err := homedir.Expand(path)
	if err != nil {
		resolved = path
	}
	code, err := os.ReadFile(resolved)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "read shader %s", resolved).WithCause(err)
	}

	format, entrypoint := shaderFormatFor(dev.Backend())
	shader, err := dev.CreateShader(gpu.ShaderDescriptor{
		Label:          outputKey,
		Stage:          stage,
		Format:         format,
		Code:           code,
		Entrypoint:     entrypoint,
		UniformBuffers: uniformBuffers,
		Samplers:       samplers,
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create %s shader from %s", stageStr, resolved).WithCause(err)
	}

	wc.Set(outputKey, shader)
	wc.Set(outputKey+"_info", map[string]any{
		"format":     formatName(format),
		"stage":      stageStr,
		"code_size":  len(code),
		"entrypoint": entrypoint,
	})

	s.logger.InfoContext(ctx, "shader compiled",
		"path", resolved, "stage", stageStr, "format", formatName(format), "size", len(code))
	return nil
}

func shaderFormatFor(backend gpu.Backend) (gpu.ShaderFormat, string) {
	switch backend {
	case gpu.BackendMetal:
		return gpu.FormatMSL, "main0"
	case gpu.BackendDX12:
		return gpu.FormatDXIL, "main"
	default:
		return gpu.FormatSPIRV, "main"
	}
}

func formatName(f gpu.ShaderFormat) string {
	switch f {
	case gpu.FormatMSL:
		return "msl"
	case gpu.FormatDXIL:
		return "dxil"
	case gpu.FormatWGSL:
		return "wgsl"
	default:
		return "spirv"
	}
}
