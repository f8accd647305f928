package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrBackendExists is returned when registering a duplicate backend.
var ErrBackendExists = errors.New("backend already registered")

// Registry holds backends in registration order.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends b. Names must be unique.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return fmt.Errorf("backend is nil")
	}
	name := b.Name()
	if name == "" {
		return fmt.Errorf("backend name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	r.backends = append(r.backends, b)
	return nil
}

// Unregister stops and removes the named backend.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	i := r.index(name)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	b := r.backends[i]
	r.backends = slices.Delete(r.backends, i, i+1)
	r.mu.Unlock()
	return b.Stop()
}

// Get returns the named backend.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(name); i >= 0 {
		return r.backends[i], true
	}
	return nil, false
}

// List returns all backends in registration order.
func (r *Registry) List() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.backends)
}

// ListEnabled returns enabled backends in registration order.
func (r *Registry) ListEnabled() []Backend {
	return slices.DeleteFunc(r.List(), func(b Backend) bool { return !b.Enabled() })
}

// Names returns backend names in registration order.
func (r *Registry) Names() []string {
	all := r.List()
	out := make([]string, len(all))
	for i, b := range all {
		out[i] = b.Name()
	}
	return out
}

// StartAll starts enabled backends in order and stops at the first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, b := range r.ListEnabled() {
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("start backend %s: %w", b.Name(), err)
		}
	}
	return nil
}

// StopAll stops every backend in reverse order and returns all failures.
func (r *Registry) StopAll() error {
	all := r.List()
	var errs []error
	for i := len(all) - 1; i >= 0; i-- {
		if err := all[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop backend %s: %w", all[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.backends, func(b Backend) bool { return b.Name() == name })
}
