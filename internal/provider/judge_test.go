package provider

import (
	"strings"
	"testing"

	"github.com/askweb/askweb-go/internal/prompts"
)

func Test_parseJudgment(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content string
		wantErr bool
		score   int
		desc    string
	}{
		{
			name:    "bare object",
			content: `{"score": 85, "description": "very relevant"}`,
			score:   85,
			desc:    "very relevant",
		},
		{
			name:    "fenced object",
			content: "```json\n{\"score\": 42, \"description\": \"partial match\"}\n```",
			score:   42,
			desc:    "partial match",
		},
		{
			name:    "surrounding prose",
			content: "Here is my answer: {\"score\": 7, \"description\": \"weak\"} Hope that helps!",
			score:   7,
			desc:    "weak",
		},
		{
			name:    "no object",
			content: "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "malformed object",
			content: `{"score": }`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseJudgment(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseJudgment(%q) = %v, want error", tc.content, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseJudgment(%q): %v", tc.content, err)
			}
			if got.Score() != tc.score {
				t.Errorf("Score = %d, want %d", got.Score(), tc.score)
			}
			if got.Description() != tc.desc {
				t.Errorf("Description = %q, want %q", got.Description(), tc.desc)
			}
		})
	}
}

func Test_Judgment_Accessors(t *testing.T) {
	t.Parallel()
	j := Judgment{"score": float64(61), "flag": true, "note": "x"}
	if j.Empty() {
		t.Error("populated judgment must not be empty")
	}
	if j.Int("score") != 61 {
		t.Errorf("Int(score) = %d, want 61", j.Int("score"))
	}
	if !j.Bool("flag") {
		t.Error("Bool(flag) = false, want true")
	}
	if j.String("note") != "x" {
		t.Errorf("String(note) = %q, want x", j.String("note"))
	}
	if j.Int("absent") != 0 || j.String("absent") != "" || j.Bool("absent") {
		t.Error("absent keys must return zero values")
	}

	var empty Judgment
	if !empty.Empty() {
		t.Error("nil judgment must be empty")
	}
	if empty.Score() != 0 {
		t.Error("empty judgment must score 0")
	}
}

func Test_schemaInstruction_Deterministic(t *testing.T) {
	t.Parallel()
	s := prompts.Schema{
		"score":       "integer between 0 and 100",
		"description": "short description of the item",
	}
	a := schemaInstruction(s)
	b := schemaInstruction(s)
	if a != b {
		t.Fatal("identical schemas must render identical instructions")
	}
	// Sorted field order: description before score.
	if strings.Index(a, "description") > strings.Index(a, "score") {
		t.Errorf("fields must be emitted in sorted order:\n%s", a)
	}
}
