package ranking

import (
	"context"
	"sync"

	"github.com/askstream/askstream/pkg/types"
)

// Sink delivers one message to the client. A sink belongs to one request;
// deliveries are serialized by the request lock, so implementations do not
// need their own locking for calls made through a Request.
type Sink interface {
	Send(ctx context.Context, msg *types.Message) error
}

// Request carries the state of one ranking request: the results produced so
// far, the delivered count, the configured thresholds and the gate. It is
// owned by exactly one ask request and shared by reference across that
// request's scoring tasks, never across requests.
type Request struct {
	Query    string
	Site     string
	ItemType string // noun used in the ranking prompt, "item" when empty

	MinScore       int // floor, exclusive
	MaxResults     int // delivery quota
	EarlyThreshold int // early-delivery floor, exclusive, >= MinScore

	Gate *Gate
	Sink Sink

	mu      sync.Mutex
	results []*types.Result
	sent    int
	final   []*types.Result
}

// NewRequest creates a request with a fresh gate and the default thresholds.
func NewRequest(query, site string, sink Sink) *Request {
	return &Request{
		Query:          query,
		Site:           site,
		MinScore:       DefaultMinScore,
		MaxResults:     DefaultMaxResults,
		EarlyThreshold: DefaultEarlySendThreshold,
		Gate:           NewGate(),
		Sink:           sink,
	}
}

func (r *Request) itemType() string {
	if r.ItemType == "" {
		return "item"
	}
	return r.ItemType
}

func (r *Request) append(res *types.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// Results returns a snapshot of the results produced so far, in arrival
// order.
func (r *Request) Results() []*types.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Result, len(r.results))
	copy(out, r.results)
	return out
}

// Delivered returns how many results have been handed to the transport.
func (r *Request) Delivered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Final returns the authoritative final result set, nil before finalization.
func (r *Request) Final() []*types.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// SetFinal records the authoritative final result set. The ranker calls
// this once, after the fan-out has joined.
func (r *Request) SetFinal(final []*types.Result) {
	r.mu.Lock()
	r.final = final
	r.mu.Unlock()
}

// deliver sends res unless it was already sent or the quota is exhausted.
// The quota check, the send and the counter increment happen under the
// request lock, so racing tasks cannot overshoot MaxResults. A send failure
// marks the gate dead; the quota slot is not consumed.
func (r *Request) deliver(ctx context.Context, res *types.Result) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Pre-checks can kill the gate after a task has already passed its
	// liveness check, so recheck here before writing.
	if !r.Gate.Alive() {
		return false, nil
	}
	if res.Sent || r.sent >= r.MaxResults {
		return false, nil
	}

	msg := &types.Message{Kind: types.MessageResult, Content: res.Payload()}
	if err := r.Sink.Send(ctx, msg); err != nil {
		r.Gate.MarkDead()
		return false, &types.TransportError{Cause: err}
	}

	res.Sent = true
	r.sent++
	return true, nil
}
