package query

import (
	"context"
	"encoding/json"
)

// Result is one scored item in an outbound result batch.
type Result struct {
	// URL is the item's canonical URL.
	URL string `json:"url"`
	// Name is the item's display name.
	Name string `json:"name"`
	// Site is the site the item belongs to.
	Site string `json:"site"`
	// SiteURL mirrors Site for clients that render a site link.
	SiteURL string `json:"siteUrl"`
	// Score is the relevance score assigned by the ranking engine (0–100).
	Score int `json:"score"`
	// Description is the model's one-paragraph relevance summary.
	Description string `json:"description"`
	// SchemaObject is the item's parsed schema.org payload.
	SchemaObject json.RawMessage `json:"schema_object"`
}

// ResultBatch is the outbound message carrying one or more scored results.
type ResultBatch struct {
	// MessageType is always "result_batch".
	MessageType string `json:"message_type"`
	// Results holds the scored items in this batch.
	Results []Result `json:"results"`
	// QueryID correlates the batch with the originating query.
	QueryID string `json:"query_id"`
}

// AskingSites is the advisory message naming the sites being queried.
type AskingSites struct {
	// MessageType is always "asking_sites".
	MessageType string `json:"message_type"`
	// Message is the human-readable site list (e.g. "Asking Seriouseats, NPR").
	Message string `json:"message"`
}

// Message type discriminator values.
const (
	MessageTypeResultBatch = "result_batch"
	MessageTypeAskingSites = "asking_sites"
)

// Transport delivers outbound messages to the client for one query.
// Implementations must be safe for concurrent use: early emissions from
// parallel scoring tasks and the final batch may interleave.
//
// Any returned error is treated by the pipeline as a lost connection: the
// liveness signal is cleared and the send is never retried.
type Transport interface {
	// SendMessage writes one message (ResultBatch or AskingSites) to the
	// client.
	SendMessage(ctx context.Context, msg any) error
}
