// Package sqlitevec implements Retriever using sqlite-vec for vector
// similarity search over ingested schema.org documents.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// Store implements the Retriever interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	embedder   provider.EmbeddingProvider
	dimensions int
}

// New opens (or creates) a document store at the configured path. The
// embedder is used both to vectorize queries and to size the vector table.
func New(cfg provider.RetrievalConfig, embedder provider.EmbeddingProvider) (*Store, error) {
	// Register sqlite-vec extension before opening any database connection.
	// Must happen once before sql.Open() so vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead
	// of failing immediately.
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	s := &Store{
		db:       db,
		path:     cfg.Path,
		embedder: embedder,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Name returns the retriever name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// createSchema creates the document table and its indexes.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			url TEXT PRIMARY KEY,
			site TEXT NOT NULL,
			name TEXT,
			schema_json TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_site ON documents(site)`)
	return err
}

// createVectorTable creates the vector table with the specified dimensions.
func (s *Store) createVectorTable(dimensions int) error {
	if s.dimensions == dimensions {
		return nil // Already created
	}

	s.dimensions = dimensions

	// Drop existing vector table if dimensions changed
	_, _ = s.db.Exec("DROP TABLE IF EXISTS document_embeddings")

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS document_embeddings USING vec0(
			url TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

// Search embeds the query and returns the closest documents for the site.
func (s *Store) Search(ctx context.Context, query, site string, limit int) ([]types.Candidate, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	embBytes := floatsToBytes(vecs[0])

	q := `
		SELECT
			d.url, d.site, d.name, d.schema_json,
			vec_distance_cosine(de.embedding, ?) as distance
		FROM document_embeddings de
		JOIN documents d ON de.url = d.url
	`
	args := []any{embBytes}

	if site != "" && site != "all" {
		q += " WHERE d.site = ?"
		args = append(args, site)
	}

	q += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var candidates []types.Candidate
	for rows.Next() {
		var (
			c        types.Candidate
			name     sql.NullString
			distance float64
		)
		if err := rows.Scan(&c.URL, &c.Site, &name, &c.Schema, &distance); err != nil {
			return nil, err
		}
		c.Name = name.String
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Upsert stores documents with their embeddings, replacing existing rows
// with the same URL.
func (s *Store) Upsert(ctx context.Context, docs []provider.Document) error {
	if len(docs) == 0 {
		return nil
	}

	// Size the vector table from the first embedded document.
	for _, doc := range docs {
		if len(doc.Embedding) > 0 {
			if err := s.createVectorTable(len(doc.Embedding)); err != nil {
				return err
			}
			break
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	docStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO documents (url, site, name, schema_json)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer docStmt.Close()

	embStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO document_embeddings (url, embedding)
		VALUES (?, ?)
	`)
	if err != nil {
		return err
	}
	defer embStmt.Close()

	for _, doc := range docs {
		if _, err := docStmt.Exec(doc.URL, doc.Site, doc.Name, doc.Schema); err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.URL, err)
		}
		if len(doc.Embedding) > 0 {
			if _, err := embStmt.Exec(doc.URL, floatsToBytes(doc.Embedding)); err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", doc.URL, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteSite removes every document for a site.
func (s *Store) DeleteSite(ctx context.Context, site string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT url FROM documents WHERE site = ?", site)
	if err != nil {
		return err
	}

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return err
		}
		urls = append(urls, url)
	}
	rows.Close()

	for _, url := range urls {
		if _, err := tx.Exec("DELETE FROM document_embeddings WHERE url = ?", url); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("DELETE FROM documents WHERE site = ?", site); err != nil {
		return err
	}

	return tx.Commit()
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*provider.RetrievalStats, error) {
	stats := &provider.RetrievalStats{}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents")
	if err := row.Scan(&stats.Documents); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT site FROM documents ORDER BY site")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, err
		}
		stats.Sites = append(stats.Sites, site)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}

	return stats, nil
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// floatsToBytes converts float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements Retriever interface
var _ provider.Retriever = (*Store)(nil)
