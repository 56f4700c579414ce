// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"

	"github.com/askstream/askstream/pkg/types"
)

// Document is one ingested schema.org object with its embedding.
type Document struct {
	URL       string
	Site      string
	Name      string
	Schema    string // raw schema.org JSON
	Embedding []float32
}

// RetrievalStats describes the state of a retrieval store.
type RetrievalStats struct {
	Documents int
	Sites     []string
	SizeBytes int64
}

// Retriever supplies candidate documents for a query.
type Retriever interface {
	// Name returns the retriever name (e.g., "sqlitevec").
	Name() string

	// Search returns up to limit candidates for the query, most similar
	// first. An empty site matches all sites.
	Search(ctx context.Context, query, site string, limit int) ([]types.Candidate, error)

	// Upsert stores documents, replacing any existing rows with the same URL.
	Upsert(ctx context.Context, docs []Document) error

	// DeleteSite removes every document for a site.
	DeleteSite(ctx context.Context, site string) error

	// Stats returns store statistics.
	Stats(ctx context.Context) (*RetrievalStats, error)

	// Close releases resources and closes connections.
	Close() error
}

// RetrievalConfig contains configuration for retrieval providers.
type RetrievalConfig struct {
	Provider string // "sqlitevec"
	Path     string // store location for file-backed providers
}
