package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "code and message only",
			err:  NewError(ErrCodeValidation, "bad workflow"),
			want: "[VALIDATION_ERROR] bad workflow",
		},
		{
			name: "with step",
			err:  NewError(ErrCodeExecution, "boom").WithStep("draw_cube"),
			want: "[EXECUTION_ERROR] step draw_cube: boom",
		},
		{
			name: "with plugin",
			err:  NewError(ErrCodeResourceCreation, "buffer create failed").WithPlugin("graphics.buffer.upload"),
			want: "[RESOURCE_CREATION] graphics.buffer.upload: buffer create failed",
		},
		{
			name: "with step and plugin",
			err: NewError(ErrCodeMissingBinding, "missing input 'vertices'").
				WithStep("mesh_upload").WithPlugin("graphics.buffer.create_vertex"),
			want: "[MISSING_BINDING] step mesh_upload (graphics.buffer.create_vertex): missing input 'vertices'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("device lost")
	err := NewErrorf(ErrCodeResourceCreation, "texture create: %s", cause.Error()).WithCause(cause)

	require.ErrorIs(t, err, cause)

	var ee *EngineError
	require.ErrorAs(t, fmt.Errorf("frame 3: %w", err), &ee)
	assert.Equal(t, ErrCodeResourceCreation, ee.Code)
}

func TestIsCode(t *testing.T) {
	inner := NewError(ErrCodeMissingContextValue, "no such key")
	outer := NewError(ErrCodeExecution, "step failed").WithCause(inner)
	wrapped := fmt.Errorf("run aborted: %w", outer)

	assert.True(t, IsCode(wrapped, ErrCodeExecution))
	assert.True(t, IsCode(wrapped, ErrCodeMissingContextValue))
	assert.False(t, IsCode(wrapped, ErrCodeValidation))
	assert.False(t, IsCode(nil, ErrCodeExecution))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeExecution))
}

func TestEngineErrorDetails(t *testing.T) {
	err := NewError(ErrCodeValidation, "stride mismatch").WithDetails(map[string]any{
		"expected": 16,
		"actual":   20,
	})

	require.NotNil(t, err.Details)
	assert.Equal(t, 16, err.Details["expected"])
	assert.Equal(t, 20, err.Details["actual"])
}
