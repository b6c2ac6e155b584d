// Package wfctx provides the shared key-value context that workflow steps
// communicate through. Every value a step produces for its successors goes
// into a Context under a string key; GPU resource handles, matrices, JSON
// state records and plain scalars all live side by side.
package wfctx

import (
	"sync"

	"github.com/renderflow/engine/pkg/schema"
)

// Context is a concurrency-safe key-value store scoped to one workflow run.
// Values are stored as written; typed accessors perform the usual JSON-style
// numeric coercions (float64 <-> int) but never parse strings.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty Context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the raw value for key and whether it exists.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Remove deletes key. Removing an absent key is a no-op.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// Keys returns a snapshot of all keys, in no particular order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored values.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a shallow copy of the stored values, suitable for feeding
// into expression evaluators.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Get retrieves the value under key as T. It fails with MISSING_CONTEXT_VALUE
// when the key is absent and VALIDATION_ERROR when the stored value has a
// different type.
func Get[T any](c *Context, key string) (T, error) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeValidation,
			"context key %q holds %T, not the requested type", key, raw)
	}
	return v, nil
}

// TryGet retrieves the value under key as T, reporting presence without error.
func TryGet[T any](c *Context, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// GetBool returns the boolean under key, or def when absent or non-boolean.
func (c *Context) GetBool(key string, def bool) bool {
	if v, ok := TryGet[bool](c, key); ok {
		return v
	}
	return def
}

// GetString returns the string under key, or def when absent or non-string.
func (c *Context) GetString(key, def string) string {
	if v, ok := TryGet[string](c, key); ok {
		return v
	}
	return def
}

// GetInt returns the integer under key, accepting float64 values that JSON
// decoding produces. Returns def when absent or non-numeric.
func (c *Context) GetInt(key string, def int) int {
	raw, ok := c.Get(key)
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return def
	}
}

// GetFloat returns the float under key, accepting integer values. Returns def
// when absent or non-numeric.
func (c *Context) GetFloat(key string, def float64) float64 {
	raw, ok := c.Get(key)
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return def
	}
}
