package provider

import (
	"math/rand"
	"sort"
)

type Registry struct {
	providers map[string]Provider
	weights   map[string]int
	order     []string
	shuffle   func(n int, swap func(i, j int))
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		weights:   make(map[string]int, len(providers)),
		shuffle:   rand.Shuffle,
	}
	for _, p := range providers {
		r.Register(p, 0)
	}
	return r
}

// Register adds or replaces a provider with the weight used by Chain.
func (r *Registry) Register(p Provider, weight int) {
	code := p.Code()
	if _, ok := r.providers[code]; !ok {
		r.order = append(r.order, code)
	}
	r.providers[code] = p
	r.weights[code] = weight
}

func (r *Registry) Get(code string) (Provider, error) {
	provider, ok := r.providers[code]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

// Chain returns the providers by descending weight. Equal weights are
// ordered randomly on every call.
func (r *Registry) Chain() []Provider {
	codes := make([]string, len(r.order))
	copy(codes, r.order)
	r.shuffle(len(codes), func(i, j int) { codes[i], codes[j] = codes[j], codes[i] })
	sort.SliceStable(codes, func(i, j int) bool {
		return r.weights[codes[i]] > r.weights[codes[j]]
	})

	chain := make([]Provider, 0, len(codes))
	for _, code := range codes {
		chain = append(chain, r.providers[code])
	}
	return chain
}

func (r *Registry) BoletoCreator() (Provider, BoletoCreator, error) {
	for _, p := range r.Chain() {
		if creator, ok := p.(BoletoCreator); ok {
			return p, creator, nil
		}
	}
	return nil, nil, ErrProviderNotSupported
}

func (r *Registry) CardCharger() (Provider, CardCharger, error) {
	for _, p := range r.Chain() {
		if charger, ok := p.(CardCharger); ok {
			return p, charger, nil
		}
	}
	return nil, nil, ErrProviderNotSupported
}
