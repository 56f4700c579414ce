package ranking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/askstream/askstream/pkg/types"
)

// buildResult combines a candidate with its scoring record. The candidate's
// schema attributes are preserved in source order; the field named "url" is
// excluded and instead feeds the grounding reference together with "@id".
func buildResult(c types.Candidate, rec map[string]any) (*types.Result, error) {
	score, err := intField(rec, "score")
	if err != nil {
		return nil, err
	}
	desc, _ := rec["description"].(string)

	attrs, err := parseSchemaObject([]byte(c.Schema))
	if err != nil {
		return nil, fmt.Errorf("parsing schema object: %w", err)
	}

	res := &types.Result{
		Type:        "Item",
		URL:         c.URL,
		Name:        c.Name,
		Site:        c.Site,
		Score:       score,
		Description: desc,
		Extra:       orderedmap.New[string, any](),
	}

	for pair := attrs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "url" {
			continue
		}
		res.Extra.Set(pair.Key, pair.Value)
	}

	if t, ok := attrs.Get("@type"); ok {
		if s, ok := t.(string); ok && s != "" {
			res.Type = s
		}
	}

	if v, ok := attrs.Get("url"); ok {
		if s, ok := v.(string); ok {
			res.Grounding = s
		}
	}
	if res.Grounding == "" {
		if v, ok := attrs.Get("@id"); ok {
			if s, ok := v.(string); ok {
				res.Grounding = s
			}
		}
	}

	return res, nil
}

// intField extracts an integer from a scoring record, tolerating the number
// shapes different providers produce.
func intField(rec map[string]any, key string) (int, error) {
	v, ok := rec[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", types.ErrMalformedResponse, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q = %v", types.ErrMalformedResponse, key, n)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q = %q", types.ErrMalformedResponse, key, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q has type %T", types.ErrMalformedResponse, key, v)
}

// parseSchemaObject decodes a schema.org JSON object preserving key order.
// An array describes a single item; its first element is used.
func parseSchemaObject(raw []byte) (*orderedmap.OrderedMap[string, any], error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return orderedmap.New[string, any](), nil
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, err
		}
		if len(elems) == 0 {
			return orderedmap.New[string, any](), nil
		}
		return parseSchemaObject(elems[0])
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema object is not a JSON object")
	}

	om := orderedmap.New[string, any]()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		om.Set(key, val)
	}
	return om, nil
}
