package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/askweb/askweb-go/internal/logging"
	"github.com/askweb/askweb-go/internal/query"
	"github.com/askweb/askweb-go/internal/retrieval"
)

// historyDepth is how many prior turns feed decontextualization.
const historyDepth = 10

// handleAsk handles POST /api/ask. The response is a Server-Sent Events
// stream: result batches and advisories arrive as they are produced, and the
// stream ends with a "done" event.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	q, err := s.buildQuery(r.Context(), &req)
	if err != nil {
		log.Error("ask: building query failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()
	start := time.Now()

	transport := &sseTransport{w: w, flusher: flusher}
	_, err = s.answerer.Answer(ctx, q, transport)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		log.Error("ask: query failed",
			slog.String("query_id", q.QueryID),
			slog.Any("error", err),
		)
		transport.sendEvent("error", err.Error())
	} else {
		s.recordTurn(r.Context(), &req, log)
		transport.sendEvent("done", "[DONE]")
	}

	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// buildQuery turns an askRequest into a pipeline query context, pulling
// prior turns from the history store when the request has a conversation ID
// but no inline history.
func (s *Server) buildQuery(ctx context.Context, req *askRequest) (*query.Context, error) {
	site := req.Site
	if site == "" {
		site = retrieval.SiteAll
	}

	prev := req.PrevQueries
	if prev == nil && req.ConversationID != "" && s.turns != nil {
		stored, err := s.turns.Queries(ctx, req.ConversationID, historyDepth)
		if err != nil {
			return nil, fmt.Errorf("server: loading conversation history: %w", err)
		}
		prev = stored
	}

	return &query.Context{
		QueryID:     req.QueryID,
		Query:       req.Query,
		Site:        site,
		ItemType:    req.ItemType,
		PrevQueries: prev,
		ContextURL:  req.ContextURL,
	}, nil
}

// recordTurn appends the answered query to the conversation history.
// History failures are logged, never surfaced to the client.
func (s *Server) recordTurn(ctx context.Context, req *askRequest, log *slog.Logger) {
	if s.turns == nil || req.ConversationID == "" {
		return
	}
	if err := s.turns.Append(ctx, req.ConversationID, req.Site, req.Query); err != nil {
		log.Warn("ask: recording turn failed",
			slog.String("conversation_id", req.ConversationID),
			slog.Any("error", err),
		)
	}
}

// sseTransport delivers pipeline messages as SSE data frames. Sends are
// serialized: early emissions from parallel scoring tasks may interleave
// with the final batch.
type sseTransport struct {
	// mu serializes writes to the response.
	mu sync.Mutex
	// w is the underlying response writer.
	w http.ResponseWriter
	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// SendMessage writes one message as a JSON SSE data frame and flushes it.
// Any write error means the client is gone.
func (t *sseTransport) SendMessage(_ context.Context, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("server: marshaling message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("server: writing SSE frame: %w", err)
	}
	t.flusher.Flush()
	return nil
}

// sendEvent writes a named SSE event (error, done). Best effort; the
// stream is ending either way.
func (t *sseTransport) sendEvent(event, data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", event, data)
	t.flusher.Flush()
}
