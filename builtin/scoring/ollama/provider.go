// Package ollama implements ScoringProvider using Ollama's generate API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// Default values
const (
	DefaultLowModel  = "llama3.2"
	DefaultHighModel = "llama3.1:70b"
	DefaultEndpoint  = "http://localhost:11434"
	DefaultMaxTokens = 512
)

// Config contains Ollama scoring configuration.
type Config struct {
	LowModel  string
	HighModel string
	Endpoint  string
}

// Provider implements the ScoringProvider interface using Ollama.
type Provider struct {
	config Config
	client *http.Client
}

// New creates a new Ollama scoring provider.
func New(cfg Config) *Provider {
	if cfg.LowModel == "" {
		cfg.LowModel = DefaultLowModel
	}
	if cfg.HighModel == "" {
		cfg.HighModel = DefaultHighModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: 120 * time.Second, // large models can be slow to first token
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
}

// Score sends the prompt and decodes the structured JSON answer.
func (p *Provider) Score(ctx context.Context, req *provider.ScoreRequest) (map[string]any, error) {
	model := p.config.LowModel
	if req.Level == "high" {
		model = p.config.HighModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	reqBody := map[string]any{
		"model":  model,
		"prompt": req.Prompt + "\n\n" + schemaInstruction(req.Schema),
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
			"num_predict": maxTokens,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return decodeRecord(result.Response)
}

// decodeRecord parses the model's answer into a JSON record.
func decodeRecord(answer string) (map[string]any, error) {
	answer = strings.TrimSpace(answer)

	// Some models wrap JSON in a markdown fence despite format=json.
	if strings.HasPrefix(answer, "```") {
		answer = strings.TrimPrefix(answer, "```json")
		answer = strings.TrimPrefix(answer, "```")
		if i := strings.LastIndex(answer, "```"); i >= 0 {
			answer = answer[:i]
		}
		answer = strings.TrimSpace(answer)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(answer), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return record, nil
}

// schemaInstruction renders the expected answer shape as a prompt suffix.
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

// Available checks if Ollama is running.
func (p *Provider) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Endpoint+"/api/version", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available at %s: %w", p.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
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
