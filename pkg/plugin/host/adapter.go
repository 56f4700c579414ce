package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/askstream/askstream/pkg/plugin/shared"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// ScoringAdapter adapts a plugin ScoringProvider to the
// provider.ScoringProvider interface.
type ScoringAdapter struct {
	plugin shared.ScoringProvider
}

// NewScoringAdapter creates a new scoring adapter.
func NewScoringAdapter(p shared.ScoringProvider) *ScoringAdapter {
	return &ScoringAdapter{plugin: p}
}

// Name returns the provider name.
func (a *ScoringAdapter) Name() string {
	return a.plugin.Name()
}

// Score forwards the call over RPC and decodes the JSON record.
func (a *ScoringAdapter) Score(ctx context.Context, req *provider.ScoreRequest) (map[string]any, error) {
	// Check context before calling plugin
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	raw, err := a.plugin.Score(req.Prompt, req.Schema, req.Level, req.MaxTokens)
	if err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return record, nil
}

// Close closes the provider.
func (a *ScoringAdapter) Close() error {
	return a.plugin.Close()
}

// Ensure ScoringAdapter implements provider.ScoringProvider
var _ provider.ScoringProvider = (*ScoringAdapter)(nil)
