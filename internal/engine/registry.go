package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/renderflow/engine/pkg/schema"
)

// Registry is a thread-safe plugin-id to Step lookup table.
//
// Registration is last-wins: registering a plugin id that is already taken
// replaces the previous step and logs the override. This lets embedders swap
// individual built-in steps without rebuilding the whole registrar.
type Registry struct {
	mu     sync.RWMutex
	steps  map[string]Step
	logger *slog.Logger
}

// NewRegistry creates an empty Registry. A nil logger defaults to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		steps:  make(map[string]Step),
		logger: logger,
	}
}

// Register adds a step under its plugin id, replacing any previous
// registration for the same id.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return schema.NewError(schema.ErrCodeValidation, "step is nil")
	}
	id := step.PluginID()
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "step plugin id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		r.logger.Warn("replacing registered step", slog.String("plugin", id))
	}
	r.steps[id] = step
	return nil
}

// Get retrieves a step by plugin id.
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnregisteredStep, "step %q not registered", id)
	}
	return step, nil
}

// Has checks if a plugin id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[id]
	return ok
}

// List returns all registered plugin ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
