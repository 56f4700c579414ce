// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	ollamaEmbed "github.com/askstream/askstream/builtin/embedding/ollama"
	openaiEmbed "github.com/askstream/askstream/builtin/embedding/openai"
	"github.com/askstream/askstream/builtin/retrieval/sqlitevec"
	ollamaScore "github.com/askstream/askstream/builtin/scoring/ollama"
	openaiScore "github.com/askstream/askstream/builtin/scoring/openai"
	"github.com/askstream/askstream/pkg/provider"
)

func init() {
	// Register scoring providers
	provider.RegisterScoring("ollama", func(cfg provider.ScoringConfig) (provider.ScoringProvider, error) {
		return ollamaScore.New(ollamaScore.Config{
			LowModel:  cfg.LowModel,
			HighModel: cfg.HighModel,
			Endpoint:  cfg.Endpoint,
		}), nil
	})

	provider.RegisterScoring("openai", func(cfg provider.ScoringConfig) (provider.ScoringProvider, error) {
		return openaiScore.New(openaiScore.Config{
			LowModel:  cfg.LowModel,
			HighModel: cfg.HighModel,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.Endpoint,
		}), nil
	})

	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	// Register retrieval stores
	provider.RegisterRetrieval("sqlitevec", func(cfg provider.RetrievalConfig, embedder provider.EmbeddingProvider) (provider.Retriever, error) {
		return sqlitevec.New(cfg, embedder)
	})
}
