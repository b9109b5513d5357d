package payment

import (
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
)

// Registry is the closed set of configured providers.
type Registry struct {
	adapters map[model.ProviderKind]adapter.ProviderAdapter
}

func NewRegistry(adapters ...adapter.ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[model.ProviderKind]adapter.ProviderAdapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Kind()] = a
		}
	}
	return r
}

func (r *Registry) Get(kind model.ProviderKind) (adapter.ProviderAdapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Checker returns the provider's status lookup, if it has one.
func (r *Registry) Checker(kind model.ProviderKind) (adapter.StatusChecker, bool) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, false
	}
	c, ok := a.(adapter.StatusChecker)
	return c, ok
}
