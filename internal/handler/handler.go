// Package handler drives one ask request end to end: pre-checks, candidate
// retrieval, concurrent scoring with streaming delivery, post-processing and
// conversation recording.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askstream/askstream/internal/conversation"
	"github.com/askstream/askstream/internal/postprocess"
	"github.com/askstream/askstream/internal/ranking"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

const relevancePrompt = `The user is searching a collection of {site.itemType} items on the site "{request.site}".

Decide whether the following query could plausibly be answered by items of that kind. A query is irrelevant only when it clearly asks about something the collection cannot contain.

Query: {request.query}`

var relevanceSchema = map[string]string{
	"relevant":    "true if the query fits the collection, false otherwise",
	"explanation": "One sentence explaining the decision",
}

// AskRequest carries the parameters of one ask call. Zero values fall back
// to the handler's configured defaults.
type AskRequest struct {
	Query          string
	Site           string
	ItemType       string
	MinScore       int
	MaxResults     int
	ConversationID string
	UserID         string
}

// Config assembles the handler's collaborators.
type Config struct {
	Scorer         provider.ScoringProvider
	Retriever      provider.Retriever
	Conversations  conversation.Storage // optional
	Ranker         *ranking.Ranker
	PostProcessor  *postprocess.PostProcessor
	RetrievalLimit int // candidates fetched per query
	MinScore       int // default floor
	MaxResults     int // default quota
	EarlyThreshold int // default early-send threshold
	SkipRelevance  bool
}

// Handler executes ask requests.
type Handler struct {
	cfg Config
}

// New creates a new handler.
func New(cfg Config) *Handler {
	if cfg.RetrievalLimit == 0 {
		cfg.RetrievalLimit = 50
	}
	return &Handler{cfg: cfg}
}

// Handle runs one ask request, streaming messages into sink. It returns the
// ranking request, whose final set callers can read after completion, and an
// error only for request-level failures; scoring and transport degradation
// stay contained.
func (h *Handler) Handle(ctx context.Context, ask *AskRequest, sink ranking.Sink) (*ranking.Request, error) {
	if strings.TrimSpace(ask.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrInvalidConfig)
	}

	req := ranking.NewRequest(ask.Query, ask.Site, sink)
	req.ItemType = ask.ItemType
	if ask.MinScore > 0 {
		req.MinScore = ask.MinScore
	} else if h.cfg.MinScore > 0 {
		req.MinScore = h.cfg.MinScore
	}
	if ask.MaxResults > 0 {
		req.MaxResults = ask.MaxResults
	} else if h.cfg.MaxResults > 0 {
		req.MaxResults = h.cfg.MaxResults
	}
	if h.cfg.EarlyThreshold > 0 {
		req.EarlyThreshold = h.cfg.EarlyThreshold
	}

	// Pre-checks run alongside retrieval; deliveries block on their
	// completion.
	go h.runPreChecks(ctx, req)

	candidates, err := h.cfg.Retriever.Search(ctx, ask.Query, ask.Site, h.cfg.RetrievalLimit)
	if err != nil {
		req.Gate.MarkDead()
		// Join the pre-check goroutine so it cannot write to the sink
		// after we return.
		req.Gate.WaitPreChecks(context.Background())
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	slog.Info("retrieved candidates", "query", ask.Query, "site", ask.Site, "count", len(candidates))

	if err := h.cfg.Ranker.Run(ctx, req, candidates); err != nil {
		req.Gate.WaitPreChecks(context.Background())
		return nil, err
	}

	if h.cfg.PostProcessor != nil {
		h.cfg.PostProcessor.Run(ctx, req)
	}

	if req.Gate.Alive() {
		msg := &types.Message{Kind: types.MessageComplete, Content: map[string]any{}}
		if err := sink.Send(ctx, msg); err != nil {
			req.Gate.MarkDead()
		}
	}

	h.recordConversation(ctx, ask, req)

	return req, nil
}

// runPreChecks validates the query before any delivery happens. An
// irrelevant query short-circuits the request; a failed check lets the
// request proceed.
func (h *Handler) runPreChecks(ctx context.Context, req *ranking.Request) {
	defer req.Gate.FinishPreChecks()

	if h.cfg.SkipRelevance {
		return
	}

	prompt := ranking.FillPrompt(relevancePrompt, map[string]string{
		"site.itemType": req.ItemType,
		"request.site":  req.Site,
		"request.query": req.Query,
	})
	rec, err := h.cfg.Scorer.Score(ctx, &provider.ScoreRequest{
		Prompt: prompt,
		Schema: relevanceSchema,
		Level:  "low",
	})
	if err != nil {
		slog.Warn("relevance check failed, proceeding", "query", req.Query, "error", err)
		return
	}

	if relevant, ok := rec["relevant"].(bool); ok && !relevant {
		explanation, _ := rec["explanation"].(string)
		slog.Info("query judged irrelevant", "query", req.Query, "explanation", explanation)

		if !req.Gate.Alive() {
			return
		}
		msg := &types.Message{
			Kind: types.MessageIntermediate,
			Content: map[string]any{
				"text": explanation,
			},
		}
		if err := req.Sink.Send(ctx, msg); err != nil {
			slog.Debug("irrelevance notice delivery failed", "error", err)
		}
		req.Gate.MarkDead()
	}
}

// recordConversation stores the ask and its answer, best effort.
func (h *Handler) recordConversation(ctx context.Context, ask *AskRequest, req *ranking.Request) {
	if h.cfg.Conversations == nil || ask.ConversationID == "" {
		return
	}

	userMsg := conversation.NewMessage(ask.ConversationID, ask.UserID, conversation.RoleUser)
	userMsg.Query = ask.Query
	userMsg.Site = ask.Site
	if err := h.cfg.Conversations.StoreMessage(ctx, userMsg); err != nil {
		slog.Warn("failed to record user message", "error", err)
		return
	}

	payloads := make([]any, 0, len(req.Final()))
	for _, res := range req.Final() {
		payloads = append(payloads, res.Payload())
	}
	encoded, err := json.Marshal(payloads)
	if err != nil {
		slog.Warn("failed to encode results", "error", err)
		return
	}

	answerMsg := conversation.NewMessage(ask.ConversationID, ask.UserID, conversation.RoleAssistant)
	answerMsg.Site = ask.Site
	answerMsg.Results = string(encoded)
	if err := h.cfg.Conversations.StoreMessage(ctx, answerMsg); err != nil {
		slog.Warn("failed to record assistant message", "error", err)
	}
}
