// Package ingest loads schema.org documents into the retrieval store: JSONL
// corpus files are parsed line by line, embedded and upserted; a watcher
// re-ingests files as they change.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/askstream/askstream/pkg/provider"
)

// Progress reports ingestion progress to an optional callback.
type Progress struct {
	File      string
	Processed int
	Skipped   int
}

// Ingestor loads corpus files into the retrieval store.
type Ingestor struct {
	embedder   provider.EmbeddingProvider
	store      provider.Retriever
	onProgress func(Progress)
}

// New creates a new ingestor.
func New(embedder provider.EmbeddingProvider, store provider.Retriever) *Ingestor {
	return &Ingestor{embedder: embedder, store: store}
}

// OnProgress registers a progress callback.
func (i *Ingestor) OnProgress(fn func(Progress)) {
	i.onProgress = fn
}

// IngestFile loads one JSONL file. Each line holds a schema.org JSON object;
// lines without a resolvable URL are skipped. An empty site defaults to the
// file's base name. Returns the number of stored documents.
func (i *Ingestor) IngestFile(ctx context.Context, path, site string) (int, error) {
	if site == "" {
		site = SiteFromPath(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	var (
		docs    []provider.Document
		skipped int
		lineNo  int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		doc, ok := parseLine(line, site)
		if !ok {
			slog.Debug("skipping corpus line", "file", path, "line", lineNo)
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read corpus file: %w", err)
	}

	if err := i.embedDocs(ctx, docs); err != nil {
		return 0, err
	}
	if err := i.store.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store documents: %w", err)
	}

	if i.onProgress != nil {
		i.onProgress(Progress{File: path, Processed: len(docs), Skipped: skipped})
	}
	slog.Info("ingested corpus file", "file", path, "site", site, "documents", len(docs), "skipped", skipped)
	return len(docs), nil
}

// IngestDir loads every .jsonl file under dir. Returns the total number of
// stored documents.
func (i *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return 0, err
	}

	var total int
	for _, path := range paths {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := i.IngestFile(ctx, path, "")
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// embedDocs fills in embeddings, batched to the provider's limit.
func (i *Ingestor) embedDocs(ctx context.Context, docs []provider.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batchSize := i.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 32
	}

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, embeddingText(doc))
		}

		vecs, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed documents: %w", err)
		}
		for j, vec := range vecs {
			docs[start+j].Embedding = vec
		}
	}
	return nil
}

// parseLine decodes a schema.org object into a document. The URL comes from
// "url" or "@id"; objects with neither cannot be addressed and are skipped.
func parseLine(line, site string) (provider.Document, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return provider.Document{}, false
	}

	url := stringField(obj, "url")
	if url == "" {
		url = stringField(obj, "@id")
	}
	if url == "" {
		return provider.Document{}, false
	}

	return provider.Document{
		URL:    url,
		Site:   site,
		Name:   stringField(obj, "name"),
		Schema: line,
	}, true
}

// embeddingText picks the fields worth vectorizing from a document.
func embeddingText(doc provider.Document) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(doc.Schema), &obj); err != nil {
		return doc.Schema
	}

	var parts []string
	for _, field := range []string{"name", "description", "keywords"} {
		if v := stringField(obj, field); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return doc.Schema
	}
	return strings.Join(parts, "\n")
}

func stringField(obj map[string]any, name string) string {
	v, ok := obj[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// SiteFromPath derives a site name from a corpus file path.
func SiteFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
