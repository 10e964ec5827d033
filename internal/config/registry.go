package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
)

// ErrProviderNotRegistered means no factory exists for the configured
// provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// EmbeddingsFactory builds the embeddings provider described by entry. dims
// is catalog.embedding_dimensions; factories for models that can shorten
// their output should request it.
type EmbeddingsFactory func(entry ProviderEntry, dims int) (embeddings.Provider, error)

// Registry resolves providers.embeddings.name to a factory. The binary
// registers its built-in providers at startup; tests register mocks.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EmbeddingsFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]EmbeddingsFactory)}
}

// RegisterEmbeddings binds name to factory, replacing any earlier binding.
func (r *Registry) RegisterEmbeddings(name string, factory EmbeddingsFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// CreateEmbeddings builds the provider for entry and checks that it produces
// vectors of dims dimensions.
func (r *Registry) CreateEmbeddings(entry ProviderEntry, dims int) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}

	p, err := factory(entry, dims)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("config: embeddings/%q factory returned no provider", entry.Name)
	}
	if err := embeddings.CheckDimensions(p, dims); err != nil {
		return nil, err
	}
	return p, nil
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
