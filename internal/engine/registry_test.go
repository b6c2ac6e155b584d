package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

type stubStep struct {
	id string
	fn func(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error
}

func (s *stubStep) PluginID() string { return s.id }

func (s *stubStep) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, def, wc)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(&stubStep{id: "graphics.frame.begin"}))
	require.NoError(t, r.Register(&stubStep{id: "graphics.frame.end"}))

	step, err := r.Get("graphics.frame.begin")
	require.NoError(t, err)
	assert.Equal(t, "graphics.frame.begin", step.PluginID())

	assert.True(t, r.Has("graphics.frame.end"))
	assert.False(t, r.Has("graphics.frame.present"))
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"graphics.frame.begin", "graphics.frame.end"}, r.List())
}

func TestRegistryGetUnregistered(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get("control.goto")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnregisteredStep))
}

func TestRegistryLastWins(t *testing.T) {
	r := NewRegistry(nil)

	first := &stubStep{id: "value.set"}
	second := &stubStep{id: "value.set"}

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, err := r.Get("value.set")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry(nil)

	err := r.Register(nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = r.Register(&stubStep{id: ""})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
