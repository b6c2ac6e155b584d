package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/pkg/schema"
)

func TestCELEvaluateConditions(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", eng.Name())

	data := map[string]any{
		"frame_skip":     false,
		"frame_number":   int64(12),
		"render.mode":    "solid",
		"loop.iteration": int64(3),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`ctx.frame_skip == false`, true},
		{`ctx.frame_number > 10`, true},
		{`ctx["render.mode"] == "wireframe"`, false},
		{`ctx["loop.iteration"] < 5`, true},
		{`!("missing_key" in ctx)`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := eng.EvaluateBool(context.Background(), tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELEvaluateBoolRejectsNonBool(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	_, err = eng.EvaluateBool(context.Background(), `ctx.frame_number`, map[string]any{"frame_number": int64(1)})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCELCompileError(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	_, err = eng.Evaluate(context.Background(), `ctx.frame_skip ==`, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = eng.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCELProgramCacheReuse(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	const expr = `ctx.frame_number >= 0`
	_, err = eng.Evaluate(context.Background(), expr, map[string]any{"frame_number": int64(0)})
	require.NoError(t, err)

	eng.mu.RLock()
	_, cached := eng.cache[expr]
	eng.mu.RUnlock()
	assert.True(t, cached)

	// second evaluation hits the cache
	out, err := eng.Evaluate(context.Background(), expr, map[string]any{"frame_number": int64(5)})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}
