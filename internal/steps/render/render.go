// Package render implements the scene rendering steps: camera and lighting
// setup, per-frame matrix preparation, the offscreen HDR frame path, the
// physics body pass, shadow mapping and the post-processing chain (SSAO,
// bloom, composite).
//
// Steps in this package communicate through well-known context keys rather
// than step bindings: the frame path writes gpu_command_buffer and
// gpu_render_pass, render.prepare publishes the frame's matrices, and every
// draw step degrades to a no-op when the resources it needs are absent. A
// workflow missing its postfx setup still renders, it just renders less.
package render

import (
	"encoding/binary"
	"log/slog"
	"math"

	"cogentcore.org/core/math32"

	"github.com/renderflow/engine/internal/engine"
)

// Pipeline handles are created by graphics.gpu.pipeline.create with an
// explicit pipeline_key parameter and looked up here by the same names.
const (
	scenePipeline        = "gpu_pipeline"
	compositePipeline    = "postfx_composite_pipeline"
	ssaoPipeline         = "postfx_ssao_pipeline"
	bloomExtractPipeline = "postfx_bloom_extract_pipeline"
	bloomBlurPipeline    = "postfx_bloom_blur_pipeline"
	shadowPipeline       = "shadow_pipeline"
)

// Steps returns the rendering steps.
func Steps(logger *slog.Logger) []engine.Step {
	return []engine.Step{
		&CameraSetup{logger: logger},
		&CameraSetPose{logger: logger},
		&LightingSetup{logger: logger},
		&RenderPrepare{logger: logger},
		&FrameBeginGPU{logger: logger},
		&BeginOffscreen{logger: logger},
		&FrameEndGPU{logger: logger},
		&DrawBodies{logger: logger},
		&PostFXSetup{logger: logger},
		&SSAO{logger: logger},
		&BloomExtract{logger: logger},
		&BloomBlur{logger: logger},
		&Composite{logger: logger},
		&ShadowSetup{logger: logger},
		&ShadowPass{logger: logger},
	}
}

func putFloat32(dst []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
}

// matrixBytes encodes a column-major matrix as 64 little-endian bytes.
func matrixBytes(m *math32.Matrix4) []byte {
	out := make([]byte, 64)
	for i, f := range m {
		putFloat32(out, i*4, f)
	}
	return out
}

func identity() math32.Matrix4 {
	var m math32.Matrix4
	m.SetIdentity()
	return m
}
