// Package trim reduces a candidate item's raw schema.org payload to a
// bounded description string suitable for inclusion in a scoring prompt.
// Because the pipeline supports multiple LLM backends with different
// tokenizers, sizing uses a conservative character-based heuristic:
// 1 token ≈ 4 characters.
package trim

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose.
	charsPerToken = 4

	// DefaultMaxChars bounds the trimmed payload. Item descriptions beyond
	// ~1.5k tokens add latency and cost without improving the judgment.
	DefaultMaxChars = 6000
)

// bulkyKeys are schema.org properties that carry large blobs irrelevant to
// relevance judgment and are dropped before size capping.
var bulkyKeys = map[string]bool{
	"image":            true,
	"images":           true,
	"video":            true,
	"review":           true,
	"reviews":          true,
	"comment":          true,
	"mainEntityOfPage": true,
	"publisher":        true,
	"hasPart":          true,
}

// EstimateTokens returns a rough token count for s.
func EstimateTokens(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Payload trims raw to at most DefaultMaxChars characters.
func Payload(raw string) string {
	return PayloadN(raw, DefaultMaxChars)
}

// PayloadN trims raw to at most maxChars characters. When raw parses as a
// JSON object, bulky properties are dropped and the result re-marshalled
// compactly; otherwise raw is treated as opaque text. The final cap is a
// hard truncation so a malformed or enormous payload can never blow up a
// prompt.
func PayloadN(raw string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	trimmed := compactObject(raw)
	if len(trimmed) > maxChars {
		// Back off to a rune boundary so the cut never leaves a broken
		// UTF-8 sequence in the prompt.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = trimmed[:cut]
	}
	return trimmed
}

// compactObject drops bulky keys from a JSON object payload and compacts
// the remainder. Non-object payloads (arrays, plain text) are compacted or
// returned as-is.
func compactObject(raw string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		// Not a JSON object — try a plain compaction, else keep verbatim.
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(raw)); err != nil {
			return raw
		}
		return buf.String()
	}

	for k := range obj {
		if bulkyKeys[k] {
			delete(obj, k)
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return string(out)
}
