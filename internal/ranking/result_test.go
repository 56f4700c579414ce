package ranking

import (
	"errors"
	"testing"

	"github.com/askstream/askstream/pkg/types"
)

func TestBuildResult(t *testing.T) {
	c := types.Candidate{
		URL:  "https://example.com/cafe",
		Name: "Corner Cafe",
		Site: "restaurants",
		Schema: `{"@type":"Restaurant","url":"https://example.com/cafe","name":"Corner Cafe",` +
			`"servesCuisine":"italian","address":{"streetAddress":"1 Main St"}}`,
	}
	rec := map[string]any{"score": float64(82), "description": "a cozy spot"}

	res, err := buildResult(c, rec)
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}

	if res.Type != "Restaurant" {
		t.Errorf("Type = %q, want Restaurant", res.Type)
	}
	if res.Score != 82 {
		t.Errorf("Score = %d, want 82", res.Score)
	}
	if res.Description != "a cozy spot" {
		t.Errorf("Description = %q", res.Description)
	}
	if res.Grounding != "https://example.com/cafe" {
		t.Errorf("Grounding = %q, want the schema url", res.Grounding)
	}
	if _, ok := res.Extra.Get("url"); ok {
		t.Error("url must not be copied into extra attributes")
	}
	if v, ok := res.Extra.Get("servesCuisine"); !ok || v != "italian" {
		t.Errorf("servesCuisine = %v, %v", v, ok)
	}
}

func TestBuildResultExtraAttributeOrder(t *testing.T) {
	c := types.Candidate{
		URL:    "https://example.com/x",
		Name:   "x",
		Site:   "s",
		Schema: `{"zeta":1,"alpha":2,"mid":3}`,
	}
	res, err := buildResult(c, map[string]any{"score": float64(60), "description": "d"})
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}

	want := []string{"zeta", "alpha", "mid"}
	i := 0
	for pair := res.Extra.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != want[i] {
			t.Errorf("attribute %d = %s, want %s (source order)", i, pair.Key, want[i])
		}
		i++
	}
}

func TestBuildResultArraySchemaUsesFirstElement(t *testing.T) {
	c := types.Candidate{
		URL:    "https://example.com/x",
		Name:   "x",
		Site:   "s",
		Schema: `[{"@type":"Book","@id":"urn:isbn:1"},{"@type":"Movie"}]`,
	}
	res, err := buildResult(c, map[string]any{"score": float64(70), "description": "d"})
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}
	if res.Type != "Book" {
		t.Errorf("Type = %q, want Book", res.Type)
	}
	if res.Grounding != "urn:isbn:1" {
		t.Errorf("Grounding = %q, want the @id fallback", res.Grounding)
	}
}

func TestBuildResultScoreShapes(t *testing.T) {
	c := types.Candidate{URL: "u", Name: "n", Site: "s", Schema: `{}`}

	tests := []struct {
		name    string
		rec     map[string]any
		want    int
		wantErr bool
	}{
		{"float", map[string]any{"score": float64(64), "description": "d"}, 64, false},
		{"string", map[string]any{"score": " 77 ", "description": "d"}, 77, false},
		{"missing", map[string]any{"description": "d"}, 0, true},
		{"garbage", map[string]any{"score": "high", "description": "d"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := buildResult(c, tt.rec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !errors.Is(err, types.ErrMalformedResponse) {
					t.Errorf("error %v should wrap ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildResult failed: %v", err)
			}
			if res.Score != tt.want {
				t.Errorf("Score = %d, want %d", res.Score, tt.want)
			}
		})
	}
}

func TestBuildResultRejectsMalformedSchema(t *testing.T) {
	c := types.Candidate{URL: "u", Name: "n", Site: "s", Schema: `not json`}
	if _, err := buildResult(c, map[string]any{"score": float64(60), "description": "d"}); err == nil {
		t.Error("expected an error for malformed schema JSON")
	}
}

func TestPayloadOmitsScoreAndSent(t *testing.T) {
	c := types.Candidate{URL: "u", Name: "n", Site: "s", Schema: `{"@type":"Thing"}`}
	res, err := buildResult(c, map[string]any{"score": float64(88), "description": "d"})
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}
	res.Sent = true

	payload := res.Payload()
	if _, ok := payload.Get("score"); ok {
		t.Error("payload must not carry the raw score")
	}
	if _, ok := payload.Get("sent"); ok {
		t.Error("payload must not carry the delivery flag")
	}
	if v, _ := payload.Get("@type"); v != "Thing" {
		t.Errorf("@type = %v, want Thing", v)
	}
}

func TestPayloadSchemaAttributesWin(t *testing.T) {
	c := types.Candidate{
		URL:  "https://example.com/cafe",
		Name: "candidate-name",
		Site: "restaurants",
		Schema: `{"@type":"Restaurant","name":"Corner Cafe",` +
			`"description":"Neighborhood cafe since 1987"}`,
	}
	res, err := buildResult(c, map[string]any{"score": float64(82), "description": "a cozy spot"})
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}

	payload := res.Payload()
	if v, _ := payload.Get("name"); v != "Corner Cafe" {
		t.Errorf("name = %v, want the schema name", v)
	}
	if v, _ := payload.Get("description"); v != "Neighborhood cafe since 1987" {
		t.Errorf("description = %v, want the schema description", v)
	}
	// The scoring blurb still backs results whose schema has no description.
	bare, err := buildResult(types.Candidate{URL: "u", Name: "n", Site: "s", Schema: `{}`},
		map[string]any{"score": float64(60), "description": "a cozy spot"})
	if err != nil {
		t.Fatalf("buildResult failed: %v", err)
	}
	if v, _ := bare.Payload().Get("description"); v != "a cozy spot" {
		t.Errorf("description = %v, want the scoring description", v)
	}
}

func TestFillPrompt(t *testing.T) {
	out := FillPrompt("q={request.query} t={site.itemType} x={unknown}", map[string]string{
		"request.query": "pasta",
		"site.itemType": "Restaurant",
	})
	want := "q=pasta t=Restaurant x={unknown}"
	if out != want {
		t.Errorf("FillPrompt = %q, want %q", out, want)
	}
}

func TestTrimDescription(t *testing.T) {
	if got := trimDescription("short", 100); got != "short" {
		t.Errorf("trimDescription left %q", got)
	}
	long := "aaaaaaaaaa"
	if got := trimDescription(long, 4); got != "aaaa" {
		t.Errorf("trimDescription = %q, want aaaa", got)
	}
	// Multibyte runes are not split.
	s := "ééééé" // 2 bytes per rune
	got := trimDescription(s, 5)
	if got != "éé" {
		t.Errorf("trimDescription = %q, want éé", got)
	}
}
