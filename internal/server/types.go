package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askweb/askweb-go/internal/query"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one /api/ask request end to end. Defaults to 2 minutes.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all metric registrations. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface the ask handlers call to run one query.
// *answer.Orchestrator satisfies it; tests inject a fake.
type answerer interface {
	// Answer runs the full pipeline for q, streaming over transport, and
	// returns the final results.
	Answer(ctx context.Context, q *query.Context, transport query.Transport) ([]query.Result, error)
}

// TurnSource supplies and records conversation turns for follow-up queries.
// *store.SQLiteStore satisfies it. A nil TurnSource disables history.
type TurnSource interface {
	// Append persists one query turn for the conversation.
	Append(ctx context.Context, conversationID, site, queryText string) error
	// Queries returns the most recent n prior queries, oldest-first.
	Queries(ctx context.Context, conversationID string, n int) ([]string, error)
}

// Server is the HTTP server that exposes the query pipeline.
type Server struct {
	// answerer runs one query end to end.
	answerer answerer
	// turns supplies conversation history. May be nil.
	turns TurnSource
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and each WebSocket message
// on /api/ws.
type askRequest struct {
	// Query is the user's natural language question. Required.
	Query string `json:"query"`
	// Site scopes retrieval to one site; "all" searches everything.
	Site string `json:"site,omitempty"`
	// ItemType narrows prompt selection (e.g. "Recipe").
	ItemType string `json:"item_type,omitempty"`
	// QueryID correlates responses; assigned server-side when empty.
	QueryID string `json:"query_id,omitempty"`
	// ConversationID keys stored conversation history.
	ConversationID string `json:"conversation_id,omitempty"`
	// PrevQueries carries prior turns inline, overriding stored history.
	PrevQueries []string `json:"prev_queries,omitempty"`
	// ContextURL anchors the query to an external page.
	ContextURL string `json:"context_url,omitempty"`
}

// completeMessage signals the end of one query's response stream.
type completeMessage struct {
	// MessageType is always "complete".
	MessageType string `json:"message_type"`
	// QueryID correlates the completion with the originating query.
	QueryID string `json:"query_id"`
}

// errorMessage reports an in-band failure for one query.
type errorMessage struct {
	// MessageType is always "error".
	MessageType string `json:"message_type"`
	// QueryID correlates the failure with the originating query.
	QueryID string `json:"query_id,omitempty"`
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
