package provider

import (
	"fmt"
	"sync"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// ContextStoreFactory creates a ContextStore.
type ContextStoreFactory func() (ContextStore, error)

// ExtractorFactory creates a ReferenceExtractor.
type ExtractorFactory func() (ReferenceExtractor, error)

// EmbeddingConfig is the configuration passed to embedding factories.
type EmbeddingConfig struct {
	Model    string
	Endpoint string
	APIKey   string
	TimeoutS int
}

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embeddingFactories map[string]EmbeddingFactory
	storeFactories     map[string]ContextStoreFactory
	extractorFactories map[string]ExtractorFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embeddingFactories: make(map[string]EmbeddingFactory),
		storeFactories:     make(map[string]ContextStoreFactory),
		extractorFactories: make(map[string]ExtractorFactory),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterStore registers a context store factory.
func (r *Registry) RegisterStore(name string, factory ContextStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeFactories[name] = factory
}

// RegisterExtractor registers a reference extractor factory.
func (r *Registry) RegisterExtractor(name string, factory ExtractorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractorFactories[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, ok := r.embeddingFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s (available: %v)", name, r.ListEmbeddings())
	}
	return factory(config)
}

// CreateStore creates a context store by name.
func (r *Registry) CreateStore(name string) (ContextStore, error) {
	r.mu.RLock()
	factory, ok := r.storeFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown context store: %s (available: %v)", name, r.ListStores())
	}
	return factory()
}

// CreateExtractor creates a reference extractor by name.
func (r *Registry) CreateExtractor(name string) (ReferenceExtractor, error) {
	r.mu.RLock()
	factory, ok := r.extractorFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown reference extractor: %s (available: %v)", name, r.ListExtractors())
	}
	return factory()
}

// ListEmbeddings returns all registered embedding provider names.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.embeddingFactories))
	for name := range r.embeddingFactories {
		names = append(names, name)
	}
	return names
}

// ListStores returns all registered context store names.
func (r *Registry) ListStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.storeFactories))
	for name := range r.storeFactories {
		names = append(names, name)
	}
	return names
}

// ListExtractors returns all registered extractor names.
func (r *Registry) ListExtractors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.extractorFactories))
	for name := range r.extractorFactories {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// RegisterEmbedding registers an embedding provider in the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterStore registers a context store in the default registry.
func RegisterStore(name string, factory ContextStoreFactory) {
	DefaultRegistry.RegisterStore(name, factory)
}

// RegisterExtractor registers a reference extractor in the default registry.
func RegisterExtractor(name string, factory ExtractorFactory) {
	DefaultRegistry.RegisterExtractor(name, factory)
}
