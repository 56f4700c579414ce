// Package postprocess derives synthetic result records from a finished
// ranking request: a map view when enough of the final results carry an
// address, and a short narrative summary over the top results. Synthetic
// records ride the same transport as ordinary results but are outside the
// quota and floor accounting.
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askstream/askstream/internal/ranking"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

const summaryPrompt = `Summarize the following search results in 2-3 sentences, highlighting the key information that answers the user's question: {request.query}

Results:
{results}`

var summarySchema = map[string]string{
	"summary": "A 2-3 sentence summary of the results",
}

const (
	summaryTopK = 3

	// DefaultSummaryTimeout bounds the summary scoring call. Summaries use
	// the high model tier, which is slower than per-item ranking calls.
	DefaultSummaryTimeout = 20 * time.Second
)

// Config contains post-processor configuration.
type Config struct {
	Scorer    provider.ScoringProvider
	Summarize bool          // emit a summary record over the top results
	MapView   bool          // emit a location map record when addresses allow
	Timeout   time.Duration // summary call timeout, DefaultSummaryTimeout when zero
}

// PostProcessor runs the optional enrichment stage after finalization.
type PostProcessor struct {
	scorer    provider.ScoringProvider
	summarize bool
	mapView   bool
	timeout   time.Duration
}

// New creates a new post-processor.
func New(cfg Config) *PostProcessor {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSummaryTimeout
	}
	return &PostProcessor{
		scorer:    cfg.Scorer,
		summarize: cfg.Summarize,
		mapView:   cfg.MapView,
		timeout:   cfg.Timeout,
	}
}

// Run executes the post-processing steps over the request's final result
// set. Steps are independent: a failure in one is swallowed and the step is
// skipped, never surfacing as a request error.
func (p *PostProcessor) Run(ctx context.Context, req *ranking.Request) {
	if !req.Gate.Alive() {
		return
	}

	if p.mapView {
		p.sendMapView(ctx, req)
	}
	if p.summarize {
		p.summarizeResults(ctx, req)
	}
}

type mapLocation struct {
	Title   string `json:"title"`
	Address string `json:"address"`
}

// sendMapView emits a LocationMap record when at least half of the final
// results have a derivable address.
func (p *PostProcessor) sendMapView(ctx context.Context, req *ranking.Request) {
	results := req.Final()
	if len(results) == 0 {
		return
	}

	var locations []mapLocation
	for _, res := range results {
		if addr := extractAddress(res); addr != "" {
			locations = append(locations, mapLocation{Title: res.Name, Address: addr})
		}
	}
	if len(locations) == 0 || len(locations)*2 < len(results) {
		return
	}

	msg := &types.Message{
		Kind: types.MessageLocationMap,
		Content: map[string]any{
			"@type":     "LocationMap",
			"locations": locations,
		},
	}
	if err := req.Sink.Send(ctx, msg); err != nil {
		req.Gate.MarkDead()
		slog.Debug("map view delivery failed", "error", err)
	}
}

// summarizeResults asks the scorer for a short narrative over the top
// results and emits it as a Summary record.
func (p *PostProcessor) summarizeResults(ctx context.Context, req *ranking.Request) {
	if !req.Gate.Alive() {
		return
	}

	results := req.Final()
	if len(results) == 0 {
		return
	}
	if len(results) > summaryTopK {
		results = results[:summaryTopK]
	}

	var lines []string
	for i, res := range results {
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, res.Name, res.Description))
	}

	prompt := ranking.FillPrompt(summaryPrompt, map[string]string{
		"request.query": req.Query,
		"results":       strings.Join(lines, "\n"),
	})

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rec, err := p.scorer.Score(cctx, &provider.ScoreRequest{
		Prompt: prompt,
		Schema: summarySchema,
		Level:  "high",
	})
	if err != nil {
		slog.Debug("summary scoring failed", "error", err)
		return
	}

	summary, _ := rec["summary"].(string)
	if summary == "" {
		return
	}

	msg := &types.Message{
		Kind: types.MessageSummary,
		Content: map[string]any{
			"@type": "Summary",
			"text":  summary,
		},
	}
	if err := req.Sink.Send(ctx, msg); err != nil {
		req.Gate.MarkDead()
		slog.Debug("summary delivery failed", "error", err)
	}
}
