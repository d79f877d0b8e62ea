// Package provider defines the external place-data source boundary and the
// adapters that normalize each source into canonical Place records. Wire
// details (endpoints, auth, payload shapes) live entirely inside each
// adapter; the engine only sees the Search contract.
package provider

import (
	"context"

	"github.com/sells-group/pizza-search/internal/model"
)

// Provider is one external place-data source. Search returns records
// normalized to the canonical schema. Errors are the caller's to absorb:
// the orchestrator substitutes an empty result and keeps going.
type Provider interface {
	// Name returns the source identifier used in per-source counts.
	Name() string

	// Search finds pizza places around a point within the given radius.
	Search(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error)
}

// Registry holds enabled providers in registration order. Iteration order is
// deterministic so per-source counts and merge order are stable across runs.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Re-registering a name replaces the provider but
// keeps its original position.
func (r *Registry) Register(p Provider) {
	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// All returns providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int { return len(r.order) }
