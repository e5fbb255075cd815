package ingestion

import (
	"encoding/json"
	"net/url"
	"strings"
)

// InferSite derives the site label for an item from its URL. The --site flag
// takes precedence over inferred values; this is the best-effort fallback
// when the feed does not carry an explicit site.
//
// "https://www.seriouseats.com/pasta" infers "seriouseats".
func InferSite(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	// The registrable label reads better than the full host:
	// "seriouseats.com" becomes "seriouseats".
	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return host
}

// embeddingText extracts the text to embed from an item's schema.org JSON.
// Name and description carry the retrieval signal; the rest of the object is
// markup the embedding model does not need. Falls back to the raw payload
// when the JSON cannot be parsed.
func embeddingText(payload string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return strings.TrimSpace(payload)
	}

	var parts []string
	for _, key := range []string{"name", "headline", "description", "text"} {
		if v, ok := obj[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(payload)
	}
	return strings.Join(parts, ". ")
}

// itemName pulls the display name out of an item's schema.org JSON.
func itemName(payload string) string {
	var obj struct {
		Name     string `json:"name"`
		Headline string `json:"headline"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return ""
	}
	if obj.Name != "" {
		return obj.Name
	}
	return obj.Headline
}

// itemURL pulls the canonical URL out of an item's schema.org JSON.
func itemURL(payload string) string {
	var obj struct {
		URL string `json:"url"`
		ID  string `json:"@id"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return ""
	}
	if obj.URL != "" {
		return obj.URL
	}
	return obj.ID
}
