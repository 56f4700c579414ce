// Package openai implements ScoringProvider using OpenAI's chat API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// Default values
const (
	DefaultLowModel  = openai.GPT4oMini
	DefaultHighModel = openai.GPT4o
	DefaultMaxTokens = 512
)

// Config contains OpenAI scoring configuration.
type Config struct {
	LowModel  string
	HighModel string
	APIKey    string // If empty, uses OPENAI_API_KEY env var
	BaseURL   string // Optional: custom API endpoint (for Azure, etc.)
}

// Provider implements the ScoringProvider interface for OpenAI.
type Provider struct {
	config Config
	client *openai.Client
}

// New creates a new OpenAI scoring provider.
func New(cfg Config) *Provider {
	if cfg.LowModel == "" {
		cfg.LowModel = DefaultLowModel
	}
	if cfg.HighModel == "" {
		cfg.HighModel = DefaultHighModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Score sends the prompt as a chat completion and decodes the JSON answer.
func (p *Provider) Score(ctx context.Context, req *provider.ScoreRequest) (map[string]any, error) {
	model := p.config.LowModel
	if req.Level == "high" {
		model = p.config.HighModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: schemaInstruction(req.Schema),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", types.ErrMalformedResponse)
	}

	var record map[string]any
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return record, nil
}

// schemaInstruction renders the expected answer shape as a system message.
func schemaInstruction(schema map[string]string) string {
	if len(schema) == 0 {
		return "Respond with a JSON object."
	}

	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Respond with a JSON object containing exactly these fields:\n")
	for _, name := range fields {
		fmt.Fprintf(&b, "- %q: %s\n", name, schema[name])
	}
	return b.String()
}

// Available checks if the OpenAI API is accessible.
func (p *Provider) Available(ctx context.Context) error {
	if p.config.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("OPENAI_API_KEY not set")
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Ensure Provider implements ScoringProvider interface
var _ provider.ScoringProvider = (*Provider)(nil)
