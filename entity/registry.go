package entity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/strata"
)

// Registry holds the descriptors of every persisted entity type.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Registering the same name twice fails with
// strata.ErrDuplicateEntity.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %w", strata.ErrConfiguration, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[d.Name]; ok {
		return fmt.Errorf("%w: %q", strata.ErrDuplicateEntity, d.Name)
	}
	r.entries[d.Name] = d
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", strata.ErrUnknownEntity, name)
	}
	return d, nil
}

// Dynamic returns the dynamic descriptors, sorted by entity name.
func (r *Registry) Dynamic() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		if d.Dynamic != nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered entity name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
