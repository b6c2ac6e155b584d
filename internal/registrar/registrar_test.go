package registrar

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/gpu/gputest"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDevice(t *testing.T) (*gputest.Device, Options) {
	t.Helper()
	dev := gputest.New()
	opts := Options{
		Logger: discard(),
		DeviceFactory: func(backend gpu.Backend, width, height int) (gpu.Device, error) {
			dev.Resize(width, height)
			return dev, nil
		},
	}
	return dev, opts
}

func writeShader(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	return path
}

func TestNewRegistersAllBuiltins(t *testing.T) {
	_, opts := testDevice(t)
	reg, exec, err := New(opts)
	require.NoError(t, err)
	require.NotNil(t, exec)

	for _, id := range []string{
		"control.if_else", "control.switch", "control.while",
		"control.for_each", "control.try_catch",
		"graphics.viewport.init", "graphics.renderer.init", "graphics.gpu.init",
		"graphics.gpu.shader.compile", "graphics.gpu.pipeline.create",
		"graphics.buffer.create_vertex", "graphics.buffer.create_index",
		"graphics.buffer.upload", "graphics.texture.load",
		"graphics.frame.begin", "graphics.frame.end", "graphics.draw.submit",
		"graphics.screenshot.request", "graphics.framebuffer.readback",
		"geometry.create_cube", "geometry.create_plane", "geometry.cube.generate",
		"physics.body.add",
		"camera.setup", "camera.set_pose", "render.lighting.setup", "render.prepare",
		"frame.gpu.begin", "frame.gpu.begin_offscreen", "frame.gpu.end",
		"frame.gpu.draw_bodies",
		"postfx.setup", "postfx.ssao", "postfx.bloom_extract", "postfx.bloom_blur",
		"postfx.composite",
		"shadow.setup", "shadow.pass",
		"string.format", "value.set", "value.compute", "json.query", "list.emit",
		"debug.metrics",
	} {
		assert.True(t, reg.Has(id), "missing step %s", id)
	}
}

// TestRenderedFrameWorkflow drives the whole direct path through the
// executor: device bring-up, cube upload, shader and pipeline creation and
// one cleared frame with a single indexed draw.
func TestRenderedFrameWorkflow(t *testing.T) {
	dev, opts := testDevice(t)
	_, exec, err := New(opts)
	require.NoError(t, err)

	dir := t.TempDir()
	vert := writeShader(t, dir, "cube.vert.spv")
	frag := writeShader(t, dir, "cube.frag.spv")

	wf := &schema.WorkflowDefinition{
		Name: "rendered-frame",
		Steps: []schema.StepDefinition{
			{
				Plugin:  "graphics.viewport.init",
				Params:  map[string]any{"width": 800, "height": 600},
				Outputs: map[string]string{"viewport_config": "viewport"},
			},
			{
				Plugin:  "graphics.renderer.init",
				Params:  map[string]any{"backend": "auto"},
				Outputs: map[string]string{"selected_renderer": "renderer"},
			},
			{
				Plugin:  "graphics.gpu.init",
				Inputs:  map[string]string{"viewport_config": "viewport", "selected_renderer": "renderer"},
				Outputs: map[string]string{"gpu_handle": "gpu"},
			},
			{Plugin: "geometry.create_cube"},
			{
				Plugin: "graphics.gpu.shader.compile",
				Params: map[string]any{"shader_path": vert, "stage": "vertex",
					"num_uniform_buffers": 1, "output_key": "vertex_shader"},
			},
			{
				Plugin: "graphics.gpu.shader.compile",
				Params: map[string]any{"shader_path": frag, "stage": "fragment",
					"output_key": "fragment_shader"},
			},
			{
				Plugin: "graphics.gpu.pipeline.create",
				Params: map[string]any{"vertex_format": "position_color"},
			},
			{
				Plugin: "value.set",
				Params: map[string]any{"clear_color": []any{0.0, 0.0, 0.0, 1.0}},
			},
			{
				Plugin:  "graphics.frame.begin",
				Inputs:  map[string]string{"clear_color": "clear_color"},
				Outputs: map[string]string{"frame_id": "frame"},
			},
			{
				Plugin: "graphics.draw.submit",
				Inputs: map[string]string{
					"program":       "gpu_pipeline",
					"vertex_handle": keys.CubeMesh,
					"index_handle":  keys.CubeMesh,
					"index_count":   "unbound_index_count",
				},
				Outputs: map[string]string{"draw_call_id": "draw"},
			},
			{Plugin: "graphics.frame.end"},
		},
	}

	wc := wfctx.New()
	runID, err := exec.Run(context.Background(), wf, wc)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 36, draws[0].IndexCount)
	assert.Equal(t, 1, draws[0].InstanceCount)

	assert.Equal(t, 1, wc.GetInt(keys.FrameNumber, -1))
	record, ok := wfctx.TryGet[map[string]any](wc, "draw")
	require.True(t, ok)
	assert.Equal(t, 36, record["index_count"])
	assert.False(t, wc.Has(keys.RenderPass))
	assert.False(t, wc.Has(keys.CommandBuffer))
}

// TestFrameLoopWorkflow runs the direct frame pair inside control.while and
// checks the counter advances once per iteration.
func TestFrameLoopWorkflow(t *testing.T) {
	dev, opts := testDevice(t)
	_, exec, err := New(opts)
	require.NoError(t, err)

	wf := &schema.WorkflowDefinition{
		Name: "frame-loop",
		Steps: []schema.StepDefinition{
			{
				Plugin:  "graphics.viewport.init",
				Params:  map[string]any{"width": 320, "height": 240},
				Outputs: map[string]string{"viewport_config": "viewport"},
			},
			{
				Plugin:  "graphics.renderer.init",
				Params:  map[string]any{"backend": "vulkan"},
				Outputs: map[string]string{"selected_renderer": "renderer"},
			},
			{
				Plugin:  "graphics.gpu.init",
				Inputs:  map[string]string{"viewport_config": "viewport", "selected_renderer": "renderer"},
				Outputs: map[string]string{"gpu_handle": "gpu"},
			},
			{
				Plugin: "value.set",
				Params: map[string]any{"clear_color": []any{0.1, 0.1, 0.15, 1.0}, "frame_number": 0},
			},
			{
				Plugin: "control.while",
				Params: map[string]any{"condition": "ctx.frame_number < 3", "max_iterations": 10},
				Body: []schema.StepDefinition{
					{
						Plugin:  "graphics.frame.begin",
						Inputs:  map[string]string{"clear_color": "clear_color"},
						Outputs: map[string]string{"frame_id": "frame"},
					},
					{Plugin: "graphics.frame.end"},
				},
			},
		},
	}

	wc := wfctx.New()
	_, err = exec.Run(context.Background(), wf, wc)
	require.NoError(t, err)
	assert.Equal(t, 3, wc.GetInt(keys.FrameNumber, -1))
	assert.Equal(t, 3, dev.Submitted())
}
