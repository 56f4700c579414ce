package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askstream/askstream/internal/conversation"
	"github.com/askstream/askstream/internal/ranking"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// fakeScorer answers relevance checks from the relevant field and ranking
// calls by matching item names embedded in the prompt.
type fakeScorer struct {
	relevant    bool
	explanation string
	scores      map[string]int
	hold        chan struct{} // when set, relevance checks wait for it
}

func (f *fakeScorer) Name() string { return "fake" }
func (f *fakeScorer) Close() error { return nil }

func (f *fakeScorer) Score(ctx context.Context, req *provider.ScoreRequest) (map[string]any, error) {
	if _, ok := req.Schema["relevant"]; ok {
		if f.hold != nil {
			<-f.hold
		}
		return map[string]any{"relevant": f.relevant, "explanation": f.explanation}, nil
	}
	for name, score := range f.scores {
		if strings.Contains(req.Prompt, name) {
			return map[string]any{
				"score":       score,
				"description": "matched " + name,
			}, nil
		}
	}
	return nil, errors.New("no scripted score for prompt")
}

type fakeRetriever struct {
	candidates []types.Candidate
	err        error
	gotSite    string
}

func (f *fakeRetriever) Name() string { return "fake" }
func (f *fakeRetriever) Close() error { return nil }
func (f *fakeRetriever) Search(ctx context.Context, query, site string, limit int) ([]types.Candidate, error) {
	f.gotSite = site
	return f.candidates, f.err
}
func (f *fakeRetriever) Upsert(ctx context.Context, docs []provider.Document) error { return nil }
func (f *fakeRetriever) DeleteSite(ctx context.Context, site string) error          { return nil }
func (f *fakeRetriever) Stats(ctx context.Context) (*provider.RetrievalStats, error) {
	return &provider.RetrievalStats{}, nil
}

type captureSink struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (s *captureSink) Send(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func candidates(n int) []types.Candidate {
	out := make([]types.Candidate, n)
	for i := range out {
		name := fmt.Sprintf("item-%02d", i)
		out[i] = types.Candidate{
			URL:    "https://example.com/" + name,
			Site:   "example",
			Name:   name,
			Schema: fmt.Sprintf(`{"@type":"Thing","name":%q,"url":"https://example.com/%s"}`, name, name),
		}
	}
	return out
}

func newHandler(scorer *fakeScorer, retriever *fakeRetriever, store conversation.Storage) *Handler {
	return New(Config{
		Scorer:        scorer,
		Retriever:     retriever,
		Conversations: store,
		Ranker:        ranking.New(ranking.Config{Scorer: scorer}),
		MaxResults:    5,
	})
}

func TestHandleStreamsAndCompletes(t *testing.T) {
	scorer := &fakeScorer{relevant: true, scores: map[string]int{
		"item-00": 90, "item-01": 75, "item-02": 30,
	}}
	retriever := &fakeRetriever{candidates: candidates(3)}
	sink := &captureSink{}

	req, err := newHandler(scorer, retriever, nil).Handle(context.Background(),
		&AskRequest{Query: "anything", Site: "example"}, sink)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var results, completes int
	for _, k := range sink.kinds() {
		switch k {
		case types.MessageResult:
			results++
		case types.MessageComplete:
			completes++
		}
	}
	if results != 2 {
		t.Errorf("delivered %d results, want 2 (scores above the floor)", results)
	}
	if completes != 1 {
		t.Errorf("got %d complete messages, want 1", completes)
	}
	if len(req.Final()) != 2 {
		t.Errorf("final set has %d entries, want 2", len(req.Final()))
	}
	if retriever.gotSite != "example" {
		t.Errorf("retriever saw site %q", retriever.gotSite)
	}
}

func TestHandleIrrelevantQueryShortCircuits(t *testing.T) {
	scorer := &fakeScorer{relevant: false, explanation: "the collection has no such items",
		scores: map[string]int{"item-00": 90}}
	retriever := &fakeRetriever{candidates: candidates(1)}
	sink := &captureSink{}

	req, err := newHandler(scorer, retriever, nil).Handle(context.Background(),
		&AskRequest{Query: "off topic", Site: "example"}, sink)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if req.Gate.Alive() {
		t.Error("gate should be dead after an irrelevant verdict")
	}

	for _, k := range sink.kinds() {
		if k == types.MessageResult || k == types.MessageComplete {
			t.Errorf("unexpected %s message after short-circuit", k)
		}
	}
	if kinds := sink.kinds(); len(kinds) == 0 || kinds[0] != types.MessageIntermediate {
		t.Errorf("messages = %v, want a leading intermediate notice", kinds)
	}
}

func TestHandleEmptyQueryRejected(t *testing.T) {
	scorer := &fakeScorer{relevant: true}
	h := newHandler(scorer, &fakeRetriever{}, nil)

	_, err := h.Handle(context.Background(), &AskRequest{Query: "  "}, &captureSink{})
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestHandleRetrievalFailure(t *testing.T) {
	scorer := &fakeScorer{relevant: true}
	retriever := &fakeRetriever{err: errors.New("store offline")}

	_, err := newHandler(scorer, retriever, nil).Handle(context.Background(),
		&AskRequest{Query: "anything"}, &captureSink{})
	if err == nil {
		t.Fatal("expected an error when retrieval fails")
	}
}

func TestHandleRetrievalFailureJoinsPreCheck(t *testing.T) {
	release := make(chan struct{})
	scorer := &fakeScorer{relevant: false, explanation: "nope", hold: release}
	retriever := &fakeRetriever{err: errors.New("store offline")}
	sink := &captureSink{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := newHandler(scorer, retriever, nil).Handle(context.Background(),
			&AskRequest{Query: "anything"}, sink); err == nil {
			t.Error("expected an error when retrieval fails")
		}
	}()

	select {
	case <-done:
		t.Fatal("Handle returned while the relevance check was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	if kinds := sink.kinds(); len(kinds) != 0 {
		t.Errorf("messages = %v, want none once the gate is dead", kinds)
	}
}

func TestHandleRecordsConversation(t *testing.T) {
	scorer := &fakeScorer{relevant: true, scores: map[string]int{"item-00": 90}}
	retriever := &fakeRetriever{candidates: candidates(1)}
	store := &memoryStorage{}

	_, err := newHandler(scorer, retriever, store).Handle(context.Background(),
		&AskRequest{Query: "anything", Site: "example", ConversationID: "conv-1", UserID: "alice"},
		&captureSink{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.stored) != 2 {
		t.Fatalf("stored %d messages, want 2", len(store.stored))
	}
	if store.stored[0].Role != conversation.RoleUser || store.stored[0].Query != "anything" {
		t.Errorf("user message = %+v", store.stored[0])
	}
	if store.stored[1].Role != conversation.RoleAssistant || store.stored[1].Results == "" {
		t.Errorf("assistant message = %+v", store.stored[1])
	}
	var recorded []map[string]any
	if err := json.Unmarshal([]byte(store.stored[1].Results), &recorded); err != nil {
		t.Fatalf("recorded results are not a JSON array: %v", err)
	}
	if len(recorded) != 1 || recorded[0]["url"] != "https://example.com/item-00" {
		t.Errorf("recorded results = %v", recorded)
	}
}

func TestAskRequestFromValues(t *testing.T) {
	values := url.Values{}
	values.Set("query", "best pizza")
	values.Set("site", "restaurants")
	values.Set("max_results", "3")
	values.Set("min_score", "not-a-number")

	ask := AskRequestFromValues(values)
	if ask.Query != "best pizza" || ask.Site != "restaurants" {
		t.Errorf("ask = %+v", ask)
	}
	if ask.MaxResults != 3 {
		t.Errorf("MaxResults = %d, want 3", ask.MaxResults)
	}
	if ask.MinScore != 0 {
		t.Errorf("MinScore = %d, want the zero default for a bad value", ask.MinScore)
	}
}

// memoryStorage is an in-memory conversation.Storage for tests.
type memoryStorage struct {
	mu     sync.Mutex
	stored []*conversation.Message
}

func (m *memoryStorage) StoreMessage(ctx context.Context, msg *conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, msg)
	return nil
}

func (m *memoryStorage) Messages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error) {
	return nil, nil
}

func (m *memoryStorage) UserConversations(ctx context.Context, userID string, limit int) ([]string, error) {
	return nil, nil
}

func (m *memoryStorage) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}

func (m *memoryStorage) Close() error { return nil }
