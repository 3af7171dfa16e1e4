// Package skills provides an in-process SkillRunner backed by a named
// registry of Go functions. Tool nodes resolve their skill by name.
package skills

import (
	"context"
	"fmt"
	"sync"
)

// Skill is the signature for an in-process skill implementation.
// It receives rendered parameters and returns structured output.
type Skill func(ctx context.Context, params map[string]any) (map[string]any, error)

// Registry manages the available skills.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		skills: make(map[string]Skill),
	}
}

// Register adds a skill to the registry.
// If a skill with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[name] = fn
}

// Names returns the registered skill names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	return names
}

// Invoke looks up a skill by name and executes it.
// Returns an error if the skill is not found.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.skills[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("skill not found: %s", name)
	}

	return fn(ctx, params)
}
