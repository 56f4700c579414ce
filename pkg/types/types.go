// Package types contains shared data types for askstream.
package types

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Candidate is one unranked document proposed by retrieval for scoring.
// Candidates are immutable once produced.
type Candidate struct {
	URL    string `json:"url"`
	Schema string `json:"schema"` // raw schema.org JSON describing the document
	Name   string `json:"name"`
	Site   string `json:"site"`
}

// Result is a candidate after its scoring call succeeded.
// Sent transitions from false to true exactly once, when the record is
// handed to the transport; a result is never mutated after delivery.
type Result struct {
	Type        string // schema.org @type, "Item" when absent
	URL         string
	Name        string
	Site        string
	Score       int // 0-100, never transmitted
	Description string
	Extra       *orderedmap.OrderedMap[string, any] // schema attributes in source order
	Grounding   string                              // url or @id from the schema object
	Sent        bool
}

// Payload returns the wire form of the result: every field except the
// internal Sent flag and the raw score. Schema attributes overlay the base
// fields, so a schema "name" or "description" wins over the candidate name
// and the scoring blurb.
func (r *Result) Payload() *orderedmap.OrderedMap[string, any] {
	out := orderedmap.New[string, any]()
	out.Set("@type", r.Type)
	out.Set("url", r.URL)
	out.Set("name", r.Name)
	out.Set("site", r.Site)
	out.Set("description", r.Description)

	if r.Extra != nil {
		for pair := r.Extra.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}

	if r.Grounding != "" {
		out.Set("grounding", r.Grounding)
	}
	return out
}

// Message kinds on the result stream.
const (
	MessageResult       = "result"
	MessageLocationMap  = "location_map"
	MessageSummary      = "summary"
	MessageIntermediate = "intermediate"
	MessageComplete     = "complete"
)

// Message is one frame on the result stream.
type Message struct {
	Kind    string `json:"message_type"`
	Content any    `json:"content"`
}
