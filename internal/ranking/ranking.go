// Package ranking coordinates concurrent scoring of candidate documents and
// the streaming delivery contract around them: at most MaxResults delivered
// records per request, every delivered record above the floor, early
// delivery for strong matches and a sorted final flush.
package ranking

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// Defaults carried from the original ranking stage.
const (
	DefaultEarlySendThreshold = 59
	DefaultMinScore           = 51
	DefaultMaxResults         = 10
	DefaultTimeout            = 8 * time.Second
)

// Config contains ranker configuration.
type Config struct {
	Scorer  provider.ScoringProvider
	Timeout time.Duration // per scoring call, DefaultTimeout when zero
	Strict  bool          // propagate scoring failures instead of dropping items (testing only)
	Metrics *Metrics      // optional
}

// Ranker scores candidates and drives delivery for one or more requests.
// It holds no per-request state and is safe for concurrent use.
type Ranker struct {
	scorer  provider.ScoringProvider
	timeout time.Duration
	strict  bool
	metrics *Metrics
}

// New creates a new ranker.
func New(cfg Config) *Ranker {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Ranker{
		scorer:  cfg.Scorer,
		timeout: cfg.Timeout,
		strict:  cfg.Strict,
		metrics: cfg.Metrics,
	}
}

// Run launches one scoring task per candidate, waits for all of them, then
// computes the final result set and flushes whatever was not sent early.
// A failure in one item's scoring never cancels its siblings: the item is
// dropped and logged. In strict mode the collected scoring failures are
// returned after the fan-out joins, before finalization.
func (r *Ranker) Run(ctx context.Context, req *Request, candidates []types.Candidate) error {
	start := time.Now()
	slog.Debug("ranking started", "query", req.Query, "candidates", len(candidates))

	var (
		wg        sync.WaitGroup
		errMu     sync.Mutex
		scoreErrs []error
	)

	for _, c := range candidates {
		// Tasks are only launched while the connection holds. Tasks already
		// in flight when it drops still run to completion; they skip the
		// delivery side effect through the gate.
		if !req.Gate.Alive() {
			continue
		}

		wg.Add(1)
		go func(c types.Candidate) {
			defer wg.Done()
			if err := r.rankItem(ctx, req, c); err != nil {
				r.metrics.scoringFailed()
				slog.Warn("dropping candidate, scoring failed", "url", c.URL, "error", err)
				if r.strict {
					errMu.Lock()
					scoreErrs = append(scoreErrs, err)
					errMu.Unlock()
				}
			}
		}(c)
	}

	wg.Wait()
	r.metrics.observeDuration(time.Since(start))

	if r.strict && len(scoreErrs) > 0 {
		return errors.Join(scoreErrs...)
	}

	r.finalize(ctx, req)
	slog.Debug("ranking finished",
		"query", req.Query,
		"ranked", len(req.Results()),
		"delivered", req.Delivered(),
		"elapsed", time.Since(start))
	return nil
}

// rankItem scores one candidate, records the result and attempts early
// delivery.
func (r *Ranker) rankItem(ctx context.Context, req *Request, c types.Candidate) error {
	prompt := FillPrompt(rankingPrompt, map[string]string{
		"site.itemType":    req.itemType(),
		"request.query":    req.Query,
		"item.description": trimDescription(c.Schema, maxDescriptionChars),
	})

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec, err := r.scorer.Score(cctx, &provider.ScoreRequest{
		Prompt: prompt,
		Schema: rankingSchema,
		Level:  "low",
	})
	if err != nil {
		return &types.ScoringError{Item: c.URL, Cause: err}
	}

	res, err := buildResult(c, rec)
	if err != nil {
		return &types.ScoringError{Item: c.URL, Cause: err}
	}

	req.append(res)
	r.metrics.scored()
	r.trySendEarly(ctx, req, res)
	return nil
}

// trySendEarly delivers a freshly scored result if it clears the early
// threshold and a quota slot is free. Results that stay behind remain
// candidates for the final flush.
func (r *Ranker) trySendEarly(ctx context.Context, req *Request, res *types.Result) {
	if !req.Gate.Alive() {
		return
	}
	if err := req.Gate.WaitPreChecks(ctx); err != nil {
		return
	}
	if res.Score <= req.EarlyThreshold {
		return
	}

	sent, err := req.deliver(ctx, res)
	if err != nil {
		// Terminal for the stream, not for sibling scoring tasks.
		slog.Warn("early delivery failed, stream closed", "url", res.URL, "error", err)
		return
	}
	if sent {
		r.metrics.delivered(phaseEarly)
	}
}

// Finalize filters results to score > minScore, sorts by score descending
// (stable, so ties keep arrival order) and truncates to maxResults. The
// input is not modified; re-running on an unchanged collection yields the
// same set.
func Finalize(results []*types.Result, minScore, maxResults int) []*types.Result {
	qualifying := make([]*types.Result, 0, len(results))
	for _, res := range results {
		if res.Score > minScore {
			qualifying = append(qualifying, res)
		}
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].Score > qualifying[j].Score
	})

	if len(qualifying) > maxResults {
		qualifying = qualifying[:maxResults]
	}
	return qualifying
}

// finalize stores the authoritative final set and flushes undelivered
// entries into the remaining quota slots. Transport failures halt the flush
// silently; a dead connection means fewer results, never an error.
func (r *Ranker) finalize(ctx context.Context, req *Request) {
	if !req.Gate.Alive() {
		return
	}
	if err := req.Gate.WaitPreChecks(ctx); err != nil {
		return
	}

	final := Finalize(req.Results(), req.MinScore, req.MaxResults)
	req.SetFinal(final)

	for _, res := range final {
		if !req.Gate.Alive() {
			return
		}
		if res.Sent {
			continue
		}
		sent, err := req.deliver(ctx, res)
		if err != nil {
			slog.Warn("final flush aborted", "url", res.URL, "error", err)
			return
		}
		if !sent {
			// Quota exhausted; slots never free up again.
			return
		}
		r.metrics.delivered(phaseFinal)
	}
}
