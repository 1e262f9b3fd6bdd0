package provider

import (
	"fmt"
	"reflect"
	"sync"
)

type registration struct {
	name     string
	provider Provider
	caps     Capabilities
}

// Registry holds providers by name in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	byName  map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make([]registration, 0),
		byName:  make(map[string]int),
	}
}

// Register binds name to p. Binding a name twice to the same instance is a
// no-op; binding it to a different instance is a configuration error.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("%w: provider name cannot be empty", ErrConfiguration)
	}
	if p == nil || (reflect.ValueOf(p).Kind() == reflect.Ptr && reflect.ValueOf(p).IsNil()) {
		return fmt.Errorf("%w: provider %q is nil", ErrConfiguration, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byName[name]; ok {
		if sameInstance(r.entries[idx].provider, p) {
			return nil
		}
		return fmt.Errorf("%w: provider name %q already registered", ErrConfiguration, name)
	}

	_, canSearch := p.(Searcher)
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, registration{
		name:     name,
		provider: p,
		caps: Capabilities{
			Manifest: true,
			Info:     true,
			Sections: true,
			Search:   canSearch,
		},
	})
	return nil
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.entries[idx].provider, true
}

// List returns all providers in registration order
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.provider
	}
	return out
}

// Names returns provider names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.name
	}
	return out
}

// Descriptors describes every registered provider in registration order
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = Descriptor{Name: e.name, Order: i, Capabilities: e.caps}
	}
	return out
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// sameInstance compares two providers without panicking on uncomparable
// values, including comparable types whose interface fields hold slices or
// maps.
func sameInstance(a, b Provider) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}
