package provider

import (
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ClientCache caches constructed providers keyed by type and endpoint. One
// instance is owned by the process-level service context and passed into
// request handling; there is no ambient global cache. Concurrent first
// access for a key constructs the provider exactly once.
type ClientCache struct {
	registry *Registry
	group    singleflight.Group

	mu        sync.RWMutex
	scoring   map[string]ScoringProvider
	embedding map[string]EmbeddingProvider
}

// NewClientCache creates a cache backed by the given registry.
func NewClientCache(registry *Registry) *ClientCache {
	return &ClientCache{
		registry:  registry,
		scoring:   make(map[string]ScoringProvider),
		embedding: make(map[string]EmbeddingProvider),
	}
}

// Scoring returns the cached scoring provider for the config, constructing
// it on first access.
func (c *ClientCache) Scoring(cfg ScoringConfig) (ScoringProvider, error) {
	key := "scoring|" + cfg.Provider + "|" + cfg.Endpoint

	c.mu.RLock()
	if p, ok := c.scoring[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.registry.CreateScoring(cfg.Provider, cfg)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.scoring[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ScoringProvider), nil
}

// Embedding returns the cached embedding provider for the config,
// constructing it on first access.
func (c *ClientCache) Embedding(cfg EmbeddingConfig) (EmbeddingProvider, error) {
	key := "embedding|" + cfg.Provider + "|" + cfg.Endpoint

	c.mu.RLock()
	if p, ok := c.embedding[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.registry.CreateEmbedding(cfg.Provider, cfg)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.embedding[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(EmbeddingProvider), nil
}

// Close closes every cached provider and empties the cache.
func (c *ClientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, p := range c.scoring {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.scoring, key)
	}
	for key, p := range c.embedding {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.embedding, key)
	}
	return errors.Join(errs...)
}
