package operations

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the steps of one pipeline keyed by step ID.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	ids   []string
}

func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step. IDs must be non-empty and unique.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.steps[id]; dup {
		return fmt.Errorf("step %q already registered", id)
	}
	r.steps[id] = step
	r.ids = append(r.ids, id)
	return nil
}

// Lookup returns the step registered under id.
func (r *Registry) Lookup(id string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.steps[id]
	return step, ok
}

// IDs lists step IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ids...)
}

// GetDependencyOrder returns every step after all of its dependencies.
// Independent steps keep their registration order.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int, len(r.steps))
	ordered := make([]Step, 0, len(r.steps))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case done:
			return nil
		case visiting:
			return NewDependencyError(id, id, "dependency cycle: "+strings.Join(append(path, id), " -> "))
		}
		mark[id] = visiting
		path = append(path, id)
		step := r.steps[id]
		for _, dep := range step.Dependencies() {
			if _, ok := r.steps[dep]; !ok {
				return NewDependencyError(id, dep, fmt.Sprintf("step %s depends on unregistered step %s", id, dep))
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		mark[id] = done
		ordered = append(ordered, step)
		return nil
	}

	for _, id := range r.ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
