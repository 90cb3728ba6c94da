// Package source defines the adapter interface over external data providers
// and the registry the reconciler fans out to.
package source

import (
	"context"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// Adapter is a pure translation layer over one external provider: request
// construction, auth, response parsing, and normalization into the common
// field set. Adapters never retry internally; retry policy is owned by the
// resilient fetcher wrapping each call.
type Adapter interface {
	// Name returns the source identifier recorded in provenance.
	Name() string

	// Confidence returns the fixed trust weight of this provider, in (0, 1].
	Confidence() float64

	// Fetch queries the provider for an entity by canonical name. It returns
	// (nil, nil) when the provider has no match. That is not an error.
	Fetch(ctx context.Context, name string) (*model.SourceRecord, error)
}

// Registry holds the adapters enabled for this process, in registration
// order. It is built once at startup from configuration; a provider with
// missing credentials is rejected eagerly rather than discovered lazily.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// putNonEmpty adds a field to rec only when the value carries data: strings
// must be non-blank and slices non-empty. Numeric values are always kept.
func putNonEmpty(fields map[string]any, key string, value any) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	case nil:
		return
	}
	fields[key] = value
}
