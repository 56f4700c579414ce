// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
)

// ScoreRequest describes one structured scoring call.
type ScoreRequest struct {
	Prompt    string            // filled prompt text
	Schema    map[string]string // field name -> description of the expected JSON shape
	Level     string            // model tier: "low" or "high"
	MaxTokens int               // response budget, 0 for provider default
}

// ScoringProvider answers a prompt with a structured JSON record.
type ScoringProvider interface {
	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string

	// Score sends the prompt and returns the decoded JSON record. The
	// record's fields must satisfy the requested schema; the caller applies
	// its own timeout through ctx.
	Score(ctx context.Context, req *ScoreRequest) (map[string]any, error)

	// Close releases any resources.
	Close() error
}

// ScoringConfig contains configuration for scoring providers.
type ScoringConfig struct {
	Provider  string // "openai", "ollama", or a plugin name
	LowModel  string // model used for per-item ranking calls
	HighModel string // model used for summaries and other expensive calls
	Endpoint  string // API endpoint
	APIKey    string // API key
}
