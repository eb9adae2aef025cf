package module

import (
	"fmt"
	"sync"
)

// Registry maps module names to implementations. Registration order is kept
// so runs without an explicit selection are deterministic.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]FaultModule
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]FaultModule),
	}
}

// Register adds a module. Names must be unique and non-empty.
func (r *Registry) Register(m FaultModule) error {
	if m == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := m.Name()
	if name == "" {
		return fmt.Errorf("register module: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("register module: %q already registered", name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
	return nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (FaultModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
