package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

func TestInputOutputKeys(t *testing.T) {
	def := &schema.StepDefinition{
		ID:      "upload",
		Plugin:  "graphics.buffer.create_vertex",
		Inputs:  map[string]string{"vertices": "cube_vertices"},
		Outputs: map[string]string{"vertex_handle": "cube_vb"},
	}

	key, err := InputKey(def, "vertices")
	require.NoError(t, err)
	assert.Equal(t, "cube_vertices", key)

	_, err = InputKey(def, "indices")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingBinding))

	key, err = OutputKey(def, "vertex_handle")
	require.NoError(t, err)
	assert.Equal(t, "cube_vb", key)

	_, err = OutputKey(def, "index_handle")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingBinding))

	_, ok := OptionalInputKey(def, "indices")
	assert.False(t, ok)
	k, ok := OptionalOutputKey(def, "vertex_handle")
	assert.True(t, ok)
	assert.Equal(t, "cube_vb", k)
}

func TestRequireInput(t *testing.T) {
	def := &schema.StepDefinition{
		Plugin: "graphics.frame.draw.submit",
		Inputs: map[string]string{"index_count": "cube_index_count"},
	}
	wc := wfctx.New()

	// bound but value absent
	_, err := RequireInput[int](def, wc, "index_count")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingContextValue))

	wc.Set("cube_index_count", 36)
	n, err := RequireInput[int](def, wc, "index_count")
	require.NoError(t, err)
	assert.Equal(t, 36, n)

	// wrong type
	wc.Set("cube_index_count", "36")
	_, err = RequireInput[int](def, wc, "index_count")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	// unbound slot
	_, err = RequireInput[int](def, wc, "pipeline")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingBinding))
}

func TestParamHelpers(t *testing.T) {
	def := &schema.StepDefinition{
		Plugin: "graphics.viewport.init",
		Params: map[string]any{
			"width":       float64(800),
			"height":      600,
			"title":       "demo",
			"vsync":       true,
			"scale":       1.5,
			"clear_color": []any{float64(0), float64(0), float64(0), float64(1)},
			"bad_array":   []any{"x"},
		},
	}

	assert.Equal(t, 800, ParamInt(def, "width", -1))
	assert.Equal(t, 600, ParamInt(def, "height", -1))
	assert.Equal(t, -1, ParamInt(def, "depth", -1))

	assert.Equal(t, "demo", ParamString(def, "title", ""))
	assert.Equal(t, "fallback", ParamString(def, "missing", "fallback"))

	assert.True(t, ParamBool(def, "vsync", false))
	assert.False(t, ParamBool(def, "missing", false))

	assert.Equal(t, 1.5, ParamFloat(def, "scale", 0))
	assert.Equal(t, 800.0, ParamFloat(def, "width", 0))
	assert.Equal(t, 2.0, ParamFloat(def, "missing", 2.0))

	colors, ok := ParamFloats(def, "clear_color")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 0, 1}, colors)

	_, ok = ParamFloats(def, "bad_array")
	assert.False(t, ok)
	_, ok = ParamFloats(def, "missing")
	assert.False(t, ok)

	w, err := RequiredParamInt(def, "width")
	require.NoError(t, err)
	assert.Equal(t, 800, w)

	_, err = RequiredParamInt(def, "title")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	title, err := RequiredParamString(def, "title")
	require.NoError(t, err)
	assert.Equal(t, "demo", title)

	_, err = RequiredParamString(def, "missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
