package providers

import (
	"fmt"
	"sort"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/ports/adapter"
)

var _ adapter.Registry = (*Registry)(nil)

// Registry holds one adapter instance per configured provider. The default
// selection is fixed at construction from configuration; nothing here is
// mutable at runtime.
type Registry struct {
	byName      map[string]adapter.PaymentProvider
	defaultName string
}

func NewRegistry(defaultName string, providers ...adapter.PaymentProvider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("registry: no providers configured")
	}
	byName := make(map[string]adapter.PaymentProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if defaultName == "" {
		defaultName = providers[0].Name()
	}
	if _, ok := byName[defaultName]; !ok {
		return nil, fmt.Errorf("registry: default provider %q not configured", defaultName)
	}
	return &Registry{byName: byName, defaultName: defaultName}, nil
}

func (r *Registry) Get(name string) (adapter.PaymentProvider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, domain.ErrUnknownProvider)
	}
	return p, nil
}

func (r *Registry) Default() adapter.PaymentProvider {
	return r.byName[r.defaultName]
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
