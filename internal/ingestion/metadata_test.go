package ingestion

import "testing"

func TestInferSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "plain host",
			url:  "https://seriouseats.com/recipes/pasta",
			want: "seriouseats",
		},
		{
			name: "www prefix stripped",
			url:  "https://www.seriouseats.com/recipes/pasta",
			want: "seriouseats",
		},
		{
			name: "subdomain keeps registrable label",
			url:  "https://text.npr.org/1234",
			want: "npr",
		},
		{
			name: "country TLD",
			url:  "https://bbc.co.uk/food",
			want: "co",
		},
		{
			name: "single label host",
			url:  "http://localhost/feed.jsonl",
			want: "localhost",
		},
		{
			name: "not a URL",
			url:  "::::",
			want: "",
		},
		{
			name: "empty",
			url:  "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := InferSite(tc.url); got != tc.want {
				t.Errorf("InferSite(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "name and description joined",
			payload: `{"name":"Carbonara","description":"A Roman pasta."}`,
			want:    "Carbonara. A Roman pasta.",
		},
		{
			name:    "headline used for articles",
			payload: `{"headline":"Election results","text":"Full coverage."}`,
			want:    "Election results. Full coverage.",
		},
		{
			name:    "non-JSON falls back to raw text",
			payload: "  just some text  ",
			want:    "just some text",
		},
		{
			name:    "JSON without text fields falls back to payload",
			payload: `{"@type":"Recipe"}`,
			want:    `{"@type":"Recipe"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := embeddingText(tc.payload); got != tc.want {
				t.Errorf("embeddingText(%q) = %q, want %q", tc.payload, got, tc.want)
			}
		})
	}
}

func TestItemURLAndName(t *testing.T) {
	t.Parallel()

	payload := `{"@id":"https://a.com/1","url":"https://a.com/canonical","name":"Item A"}`
	if got := itemURL(payload); got != "https://a.com/canonical" {
		t.Errorf("itemURL: url field should win over @id, got %q", got)
	}
	if got := itemURL(`{"@id":"https://a.com/1"}`); got != "https://a.com/1" {
		t.Errorf("itemURL: expected @id fallback, got %q", got)
	}
	if got := itemName(payload); got != "Item A" {
		t.Errorf("itemName: got %q", got)
	}
	if got := itemName(`{"headline":"Story"}`); got != "Story" {
		t.Errorf("itemName: expected headline fallback, got %q", got)
	}
}
