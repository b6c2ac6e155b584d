package wfctx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/pkg/schema"
)

func TestContextSetGetRemove(t *testing.T) {
	c := New()

	c.Set("frame_width", 800)
	c.Set("frame_skip", false)

	v, ok := c.Get("frame_width")
	require.True(t, ok)
	assert.Equal(t, 800, v)

	c.Remove("frame_width")
	_, ok = c.Get("frame_width")
	assert.False(t, ok)

	// removing twice is fine
	c.Remove("frame_width")
	assert.True(t, c.Has("frame_skip"))
	assert.Equal(t, 1, c.Len())
}

func TestTypedGet(t *testing.T) {
	c := New()
	c.Set("gpu_device", uint64(7))

	id, err := Get[uint64](c, "gpu_device")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	_, err = Get[uint64](c, "gpu_queue")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingContextValue))

	_, err = Get[string](c, "gpu_device")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestTryGet(t *testing.T) {
	c := New()
	c.Set("render.mode", "solid")

	mode, ok := TryGet[string](c, "render.mode")
	assert.True(t, ok)
	assert.Equal(t, "solid", mode)

	_, ok = TryGet[int](c, "render.mode")
	assert.False(t, ok)

	_, ok = TryGet[string](c, "missing")
	assert.False(t, ok)
}

func TestScalarAccessorsCoerce(t *testing.T) {
	c := New()
	c.Set("width", float64(800)) // as JSON decoding produces
	c.Set("elapsed", 0.5)
	c.Set("count", 36)
	c.Set("label", "hdr")

	assert.Equal(t, 800, c.GetInt("width", -1))
	assert.Equal(t, 36, c.GetInt("count", -1))
	assert.Equal(t, -1, c.GetInt("label", -1))
	assert.Equal(t, -1, c.GetInt("missing", -1))

	assert.Equal(t, 0.5, c.GetFloat("elapsed", 0))
	assert.Equal(t, 36.0, c.GetFloat("count", 0))
	assert.Equal(t, 2.0, c.GetFloat("missing", 2.0))

	assert.Equal(t, "hdr", c.GetString("label", ""))
	assert.Equal(t, "fallback", c.GetString("missing", "fallback"))

	assert.False(t, c.GetBool("frame_skip", false))
	c.Set("frame_skip", true)
	assert.True(t, c.GetBool("frame_skip", false))
}

func TestSnapshotIsCopy(t *testing.T) {
	c := New()
	c.Set("a", 1)

	snap := c.Snapshot()
	snap["b"] = 2

	assert.False(t, c.Has("b"))
	assert.ElementsMatch(t, []string{"a"}, c.Keys())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set("frame_number", n)
			c.GetInt("frame_number", 0)
			c.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.True(t, c.Has("frame_number"))
}
