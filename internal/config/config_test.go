package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateScoringProvider(t *testing.T) {
	tests := []struct {
		provider string
		plugins  []PluginConfig
		wantErr  bool
	}{
		{"openai", nil, false},
		{"ollama", nil, false},
		{"invalid", nil, true},
		{"OPENAI", nil, true}, // case sensitive
		{"dummy", []PluginConfig{{Name: "dummy", Path: "/usr/bin/dummy"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Scoring.Provider = tt.provider
			cfg.Plugins.Scoring = tt.plugins
			errs := Validate(cfg)

			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate(Scoring.Provider=%q) errs=%v, wantErr=%v", tt.provider, errs, tt.wantErr)
			}
		})
	}
}

func TestValidateRankingBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ranking.MinScore = 120
	cfg.Ranking.EarlyThreshold = -1
	cfg.Ranking.MaxResults = 0

	errs := Validate(cfg)
	if len(errs) != 3 {
		t.Errorf("Validate returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if errs := Validate(DefaultConfig()); len(errs) != 0 {
		t.Errorf("DefaultConfig should validate, got %v", errs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the missing config file")
	}
	if cfg.Ranking.MinScore != 51 || cfg.Ranking.EarlyThreshold != 59 {
		t.Errorf("default ranking thresholds = %d/%d, want 51/59",
			cfg.Ranking.MinScore, cfg.Ranking.EarlyThreshold)
	}
	if cfg.Retrieval.Path != DocumentDBPath(dir) {
		t.Errorf("Retrieval.Path = %q, want it under the config dir", cfg.Retrieval.Path)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(ConfigDir(dir), 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "scoring:\n  provider: openai\n  api_key: sk-test\nranking:\n  max_results: 3\n"
	if err := os.WriteFile(ConfigPath(dir), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.Provider != "openai" || cfg.Scoring.APIKey != "sk-test" {
		t.Errorf("scoring section not applied: %+v", cfg.Scoring)
	}
	if cfg.Ranking.MaxResults != 3 {
		t.Errorf("Ranking.MaxResults = %d, want 3", cfg.Ranking.MaxResults)
	}
	if cfg.Ranking.MinScore != 51 {
		t.Errorf("Ranking.MinScore = %d, want default 51", cfg.Ranking.MinScore)
	}
	if cfg.Scoring.LowModel == "" {
		t.Error("LowModel should fall back to a default")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Scoring.Provider = "openai"
	cfg.Ranking.MaxResults = 7

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ConfigDir(dir), "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Scoring.Provider != "openai" || loaded.Ranking.MaxResults != 7 {
		t.Errorf("round trip lost values: %+v", loaded.Scoring)
	}
}

func TestHashTracksEmbeddingChanges(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash the same")
	}
	b.Embedding.Model = "other-model"
	if a.Hash() == b.Hash() {
		t.Error("embedding model change should change the hash")
	}
}
