// Package deploy binds verified domains to hosting providers.
//
// Each supported provider is a thin adapter over the hosting control plane;
// a Registry dispatches by provider name so the orchestrator stays ignorant
// of provider-specific paths.
package deploy

import (
	"context"

	dErrors "plinth/pkg/domain-errors"
)

// BindResult is the outcome of a successful hosting bind.
type BindResult struct {
	// URL is the live address serving the domain.
	URL string
}

// Provider maps a domain onto one hosting backend.
type Provider interface {
	// Name is the wire identifier ("vercel", "cloud_run").
	Name() string
	// DisplayName is the human-facing label.
	DisplayName() string
	// Bind routes the domain to the project on this backend.
	Bind(ctx context.Context, domainName, projectID string) (BindResult, error)
	// Release removes the domain's mapping. Unknown mappings are a no-op.
	Release(ctx context.Context, domainName string) error
}

// Registry holds the supported providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name, or a validation error naming the
// supported set.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported hosting provider: %s", name)
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
