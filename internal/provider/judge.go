package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/askweb/askweb-go/internal/prompts"
)

// Judgment is the structured response of one model judgment call. It mirrors
// the JSON object the model returned. An empty Judgment signals "no usable
// judgment" (timeout, parse failure, or backend error) and must be treated
// as score 0 by callers — never as an error that aborts a batch.
type Judgment map[string]any

// Empty reports whether this judgment carries no usable response.
func (j Judgment) Empty() bool { return len(j) == 0 }

// Int returns the integer value under key, tolerating the float64 that
// encoding/json produces for JSON numbers. Absent or non-numeric values
// return 0.
func (j Judgment) Int(key string) int {
	switch v := j[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// String returns the string value under key, or "" when absent.
func (j Judgment) String(key string) string {
	if s, ok := j[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the boolean value under key, tolerating the "True"/"true"
// strings some models emit instead of JSON booleans. Absent or other values
// return false.
func (j Judgment) Bool(key string) bool {
	switch v := j[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// Score returns the judgment's relevance score (0 when absent).
func (j Judgment) Score() int { return j.Int("score") }

// Description returns the judgment's relevance description.
func (j Judgment) Description() string { return j.String("description") }

// Judge is the model-judgment collaborator contract. Implementations never
// return an error for runtime failures — a failed call yields an empty
// Judgment so one slow or broken backend request degrades a batch instead
// of aborting it.
type Judge interface {
	// Judge renders prompt against the model selected by tier, requesting a
	// JSON response matching responseSchema, bounded by timeout.
	Judge(ctx context.Context, prompt string, responseSchema prompts.Schema, tier Tier, timeout time.Duration) Judgment
}

// LLMJudge implements Judge on top of two eino ChatModels, one per tier.
type LLMJudge struct {
	// low handles TierLow calls (per-item scoring).
	low model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
	// high handles TierHigh calls (query-level checks).
	high model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
	// log is the structured logger for judgment failures.
	log *slog.Logger
}

// NewJudge validates cfg and constructs the two tier models. When both
// tiers name the same model, one ChatModel is shared.
func NewJudge(ctx context.Context, cfg *Config, log *slog.Logger) (*LLMJudge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	low, err := newChatModel(ctx, cfg, cfg.Models.Low)
	if err != nil {
		return nil, fmt.Errorf("provider: low-tier model: %w", err)
	}

	high := low
	if cfg.Models.High != cfg.Models.Low {
		high, err = newChatModel(ctx, cfg, cfg.Models.High)
		if err != nil {
			return nil, fmt.Errorf("provider: high-tier model: %w", err)
		}
	}

	return &LLMJudge{low: low, high: high, log: log}, nil
}

// Judge implements the Judge contract. All runtime failures are logged and
// collapsed into an empty Judgment.
func (j *LLMJudge) Judge(ctx context.Context, prompt string, responseSchema prompts.Schema, tier Tier, timeout time.Duration) Judgment {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m := j.low
	if tier == TierHigh {
		m = j.high
	}

	msgs := []*schema.Message{
		schema.SystemMessage(schemaInstruction(responseSchema)),
		schema.UserMessage(prompt),
	}

	out, err := m.Generate(ctx, msgs)
	if err != nil {
		j.log.Warn("judge: model call failed", slog.String("tier", string(tier)), slog.Any("error", err))
		return Judgment{}
	}

	judgment, err := parseJudgment(out.Content)
	if err != nil {
		j.log.Warn("judge: unparseable model response", slog.String("tier", string(tier)), slog.Any("error", err))
		return Judgment{}
	}
	return judgment
}

// schemaInstruction renders the response-schema contract the model must
// follow. Fields are emitted in sorted order so identical schemas always
// produce identical prompts (and therefore identical cache keys).
func schemaInstruction(s prompts.Schema) string {
	var b strings.Builder
	b.WriteString("Respond with ONLY a JSON object — no markdown fencing, no prose outside the JSON.\n")
	b.WriteString("The object must have exactly these fields:\n")

	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %q: %s\n", k, s[k])
	}
	return b.String()
}

// parseJudgment extracts the first JSON object from a model response,
// tolerating markdown fencing and surrounding prose.
func parseJudgment(content string) (Judgment, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("provider: no JSON object in response")
	}

	var out Judgment
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("provider: decode judgment: %w", err)
	}
	return out, nil
}
