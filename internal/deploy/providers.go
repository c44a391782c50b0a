package deploy

import "context"

// controlPlaneProvider adapts one provider name onto the shared control
// plane client. All supported backends speak the same mapping API; only the
// provider path segment differs.
type controlPlaneProvider struct {
	name        string
	displayName string
	plane       ControlPlane
}

func (p *controlPlaneProvider) Name() string        { return p.name }
func (p *controlPlaneProvider) DisplayName() string { return p.displayName }

func (p *controlPlaneProvider) Bind(ctx context.Context, domainName, projectID string) (BindResult, error) {
	url, err := p.plane.CreateMapping(ctx, p.name, domainName, projectID)
	if err != nil {
		return BindResult{}, err
	}
	return BindResult{URL: url}, nil
}

func (p *controlPlaneProvider) Release(ctx context.Context, domainName string) error {
	return p.plane.DeleteMapping(ctx, p.name, domainName)
}

// DefaultRegistry wires the supported hosting backends against the control
// plane.
func DefaultRegistry(plane ControlPlane) *Registry {
	r := NewRegistry()
	for _, entry := range []struct{ name, display string }{
		{"vercel", "Vercel"},
		{"cloudflare", "Cloudflare Pages"},
		{"netlify", "Netlify"},
		{"cloud_run", "Cloud Run"},
	} {
		r.Register(&controlPlaneProvider{name: entry.name, displayName: entry.display, plane: plane})
	}
	return r
}
