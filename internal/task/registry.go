package task

import (
	"fmt"
	"sync"
)

// Factory rebuilds an executable Task from a queue envelope.
type Factory func(env Envelope) (Task, error)

// Registry maps task types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds taskType to f, replacing any previous factory.
func (r *Registry) Register(taskType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = f
}

// Has reports whether taskType is registered.
func (r *Registry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[taskType]
	return ok
}

// Build creates the Task described by env.
func (r *Registry) Build(env Envelope) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, env.Type)
	}
	return f(env)
}
