package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeScoring struct {
	name string
}

func (f *fakeScoring) Name() string { return f.name }
func (f *fakeScoring) Score(ctx context.Context, req *ScoreRequest) (map[string]any, error) {
	return map[string]any{"score": float64(0)}, nil
}
func (f *fakeScoring) Close() error { return nil }

func TestRegistryCreateScoring(t *testing.T) {
	r := NewRegistry()
	r.RegisterScoring("fake", func(cfg ScoringConfig) (ScoringProvider, error) {
		return &fakeScoring{name: "fake"}, nil
	})

	p, err := r.CreateScoring("fake", ScoringConfig{})
	if err != nil {
		t.Fatalf("CreateScoring failed: %v", err)
	}
	if p.Name() != "fake" {
		t.Errorf("Name() = %q, want %q", p.Name(), "fake")
	}

	if _, err := r.CreateScoring("missing", ScoringConfig{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestRegistryHas(t *testing.T) {
	r := NewRegistry()
	if r.HasScoring("fake") {
		t.Error("HasScoring should be false on empty registry")
	}
	r.RegisterScoring("fake", func(cfg ScoringConfig) (ScoringProvider, error) {
		return &fakeScoring{name: "fake"}, nil
	})
	if !r.HasScoring("fake") {
		t.Error("HasScoring should be true after registration")
	}
}

func TestClientCacheSingleConstruction(t *testing.T) {
	r := NewRegistry()
	var constructed atomic.Int32
	r.RegisterScoring("fake", func(cfg ScoringConfig) (ScoringProvider, error) {
		constructed.Add(1)
		return &fakeScoring{name: "fake"}, nil
	})

	cache := NewClientCache(r)
	cfg := ScoringConfig{Provider: "fake", Endpoint: "http://localhost:1234"}

	var wg sync.WaitGroup
	providers := make([]ScoringProvider, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cache.Scoring(cfg)
			if err != nil {
				t.Errorf("Scoring failed: %v", err)
				return
			}
			providers[i] = p
		}(i)
	}
	wg.Wait()

	if got := constructed.Load(); got != 1 {
		t.Errorf("provider constructed %d times, want 1", got)
	}
	for i := 1; i < 16; i++ {
		if providers[i] != providers[0] {
			t.Errorf("goroutine %d got a different instance", i)
		}
	}
}

func TestClientCacheKeyedByEndpoint(t *testing.T) {
	r := NewRegistry()
	var constructed atomic.Int32
	r.RegisterScoring("fake", func(cfg ScoringConfig) (ScoringProvider, error) {
		constructed.Add(1)
		return &fakeScoring{name: cfg.Endpoint}, nil
	})

	cache := NewClientCache(r)
	a, _ := cache.Scoring(ScoringConfig{Provider: "fake", Endpoint: "http://a"})
	b, _ := cache.Scoring(ScoringConfig{Provider: "fake", Endpoint: "http://b"})

	if constructed.Load() != 2 {
		t.Errorf("expected 2 constructions, got %d", constructed.Load())
	}
	if a == b {
		t.Error("different endpoints should get different instances")
	}
}
