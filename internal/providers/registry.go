package providers

import (
	"fmt"
	"sort"
)

// KnownProviders is the set of provider names the gateway recognizes,
// whether or not credentials are configured for them.
var KnownProviders = []string{"gmail", "outlook"}

// Registry holds the configured providers and resolves names to instances.
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	providers map[string]Provider
	known     map[string]bool
}

// NewRegistry creates a registry over the given configured providers.
// Providers whose Name() is not in KnownProviders are rejected.
func NewRegistry(configured ...Provider) (*Registry, error) {
	known := make(map[string]bool, len(KnownProviders))
	for _, name := range KnownProviders {
		known[name] = true
	}

	r := &Registry{
		providers: make(map[string]Provider, len(configured)),
		known:     known,
	}
	for _, p := range configured {
		if !known[p.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, p.Name())
		}
		if _, dup := r.providers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate provider: %s", p.Name())
		}
		r.providers[p.Name()] = p
	}
	return r, nil
}

// Resolve returns the configured provider for a name.
// Returns ErrProviderUnknown for names outside KnownProviders and
// ErrProviderUnconfigured for known names without credentials. The two are
// distinct so audit logs can tell a typo from a deployment gap.
func (r *Registry) Resolve(name string) (Provider, error) {
	if !r.known[name] {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnconfigured, name)
	}
	return p, nil
}

// Configured returns the names of all configured providers, sorted.
func (r *Registry) Configured() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsConfigured reports whether credentials exist for a provider name.
func (r *Registry) IsConfigured(name string) bool {
	_, ok := r.providers[name]
	return ok
}
