package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

type fakeEmbedder struct {
	batchSize int
	calls     [][]string
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return f.batchSize }
func (f *fakeEmbedder) Close() error      { return nil }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeStore struct {
	mu       sync.Mutex
	upserted []provider.Document
	deleted  []string
}

func (f *fakeStore) Name() string { return "fake" }
func (f *fakeStore) Close() error { return nil }
func (f *fakeStore) Search(ctx context.Context, query, site string, limit int) ([]types.Candidate, error) {
	return nil, nil
}
func (f *fakeStore) Upsert(ctx context.Context, docs []provider.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, docs...)
	return nil
}
func (f *fakeStore) DeleteSite(ctx context.Context, site string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, site)
	return nil
}
func (f *fakeStore) Stats(ctx context.Context) (*provider.RetrievalStats, error) {
	return &provider.RetrievalStats{}, nil
}

func writeCorpus(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, "restaurants.jsonl",
		`{"@type":"Restaurant","url":"https://a.example/1","name":"Pizza Place","description":"wood-fired pies"}`,
		`{"@type":"Restaurant","@id":"https://a.example/2","name":"Sushi Bar"}`,
		``,
		`{"@type":"Restaurant","name":"no url, skipped"}`,
		`not json`,
	)

	emb := &fakeEmbedder{batchSize: 16}
	store := &fakeStore{}
	n, err := New(emb, store).IngestFile(context.Background(), path, "")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("ingested %d documents, want 2", n)
	}

	if store.upserted[0].Site != "restaurants" {
		t.Errorf("site = %q, want the file base name", store.upserted[0].Site)
	}
	if store.upserted[1].URL != "https://a.example/2" {
		t.Errorf("URL = %q, want the @id fallback", store.upserted[1].URL)
	}
	for _, doc := range store.upserted {
		if len(doc.Embedding) == 0 {
			t.Errorf("document %s has no embedding", doc.URL)
		}
	}
}

func TestEmbeddingTextPrefersNameAndDescription(t *testing.T) {
	doc := provider.Document{Schema: `{"name":"Pizza Place","description":"wood-fired pies","telephone":"555"}`}
	got := embeddingText(doc)
	if got != "Pizza Place\nwood-fired pies" {
		t.Errorf("embeddingText = %q", got)
	}

	// Without named fields the raw JSON is embedded.
	doc = provider.Document{Schema: `{"telephone":"555"}`}
	if got := embeddingText(doc); got != doc.Schema {
		t.Errorf("embeddingText = %q, want the raw schema", got)
	}
}

func TestIngestRespectsBatchSize(t *testing.T) {
	dir := t.TempDir()
	lines := make([]string, 5)
	for i := range lines {
		lines[i] = `{"url":"https://a.example/` + string(rune('a'+i)) + `","name":"x"}`
	}
	path := writeCorpus(t, dir, "batch.jsonl", lines...)

	emb := &fakeEmbedder{batchSize: 2}
	store := &fakeStore{}
	if _, err := New(emb, store).IngestFile(context.Background(), path, ""); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if len(emb.calls) != 3 {
		t.Errorf("embedder called %d times, want 3 batches of <=2", len(emb.calls))
	}
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "a.jsonl", `{"url":"https://a.example/1","name":"x"}`)
	writeCorpus(t, dir, "b.jsonl", `{"url":"https://b.example/1","name":"y"}`)
	writeCorpus(t, dir, "ignored.txt", `{"url":"https://c.example/1"}`)

	emb := &fakeEmbedder{batchSize: 16}
	store := &fakeStore{}
	n, err := New(emb, store).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if n != 2 {
		t.Errorf("ingested %d documents, want 2", n)
	}

	sites := map[string]bool{}
	for _, doc := range store.upserted {
		sites[doc.Site] = true
	}
	if !sites["a"] || !sites["b"] {
		t.Errorf("sites = %v", sites)
	}
}

func TestSiteFromPath(t *testing.T) {
	if got := SiteFromPath("/data/corpus/restaurants.jsonl"); got != "restaurants" {
		t.Errorf("SiteFromPath = %q", got)
	}
}
