package provider

import (
	"fmt"
	"sync"
)

// ScoringFactory creates a ScoringProvider from configuration.
type ScoringFactory func(config ScoringConfig) (ScoringProvider, error)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// RetrievalFactory creates a Retriever from configuration. The embedder is
// used for query embedding; providers that do their own embedding may
// ignore it.
type RetrievalFactory func(config RetrievalConfig, embedder EmbeddingProvider) (Retriever, error)

// Registry holds factories for all provider types. It is populated at
// process start from the builtin set and the configured plugin list; there
// is no runtime provider installation.
type Registry struct {
	mu sync.RWMutex

	scoringFactories   map[string]ScoringFactory
	embeddingFactories map[string]EmbeddingFactory
	retrievalFactories map[string]RetrievalFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scoringFactories:   make(map[string]ScoringFactory),
		embeddingFactories: make(map[string]EmbeddingFactory),
		retrievalFactories: make(map[string]RetrievalFactory),
	}
}

// RegisterScoring registers a scoring provider factory.
func (r *Registry) RegisterScoring(name string, factory ScoringFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoringFactories[name] = factory
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterRetrieval registers a retrieval provider factory.
func (r *Registry) RegisterRetrieval(name string, factory RetrievalFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrievalFactories[name] = factory
}

// CreateScoring creates a scoring provider by name.
func (r *Registry) CreateScoring(name string, config ScoringConfig) (ScoringProvider, error) {
	r.mu.RLock()
	factory, ok := r.scoringFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown scoring provider: %s (available: %v)", name, r.ListScoring())
	}
	return factory(config)
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

// CreateRetrieval creates a retriever by name.
func (r *Registry) CreateRetrieval(name string, config RetrievalConfig, embedder EmbeddingProvider) (Retriever, error) {
	r.mu.RLock()
	factory, ok := r.retrievalFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown retrieval provider: %s (available: %v)", name, r.ListRetrievals())
	}
	return factory(config, embedder)
}

// ListScoring returns all registered scoring provider names.
func (r *Registry) ListScoring() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scoringFactories))
	for name := range r.scoringFactories {
		names = append(names, name)
	}
	return names
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

// ListRetrievals returns all registered retrieval provider names.
func (r *Registry) ListRetrievals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.retrievalFactories))
	for name := range r.retrievalFactories {
		names = append(names, name)
	}
	return names
}

// HasScoring checks if a scoring provider is registered.
func (r *Registry) HasScoring(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scoringFactories[name]
	return ok
}

// HasEmbedding checks if an embedding provider is registered.
func (r *Registry) HasEmbedding(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.embeddingFactories[name]
	return ok
}

// HasRetrieval checks if a retrieval provider is registered.
func (r *Registry) HasRetrieval(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.retrievalFactories[name]
	return ok
}

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// RegisterScoring registers a scoring provider in the default registry.
func RegisterScoring(name string, factory ScoringFactory) {
	DefaultRegistry.RegisterScoring(name, factory)
}

// RegisterEmbedding registers an embedding provider in the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterRetrieval registers a retrieval provider in the default registry.
func RegisterRetrieval(name string, factory RetrievalFactory) {
	DefaultRegistry.RegisterRetrieval(name, factory)
}
