package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askweb/askweb-go/internal/query"
)

// fakeAnswerer streams a fixed batch over the transport and returns the
// configured results and error.
type fakeAnswerer struct {
	mu      sync.Mutex
	queries []*query.Context
	results []query.Result
	err     error
}

func (f *fakeAnswerer) Answer(ctx context.Context, q *query.Context, transport query.Transport) ([]query.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > 0 {
		batch := query.ResultBatch{
			MessageType: query.MessageTypeResultBatch,
			Results:     f.results,
			QueryID:     q.QueryID,
		}
		if err := transport.SendMessage(ctx, batch); err != nil {
			return nil, err
		}
	}
	return f.results, nil
}

// fakeTurns is an in-memory TurnSource.
type fakeTurns struct {
	mu       sync.Mutex
	appended []string
	stored   map[string][]string
}

func (f *fakeTurns) Append(_ context.Context, conversationID, site, queryText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, conversationID+"|"+queryText)
	return nil
}

func (f *fakeTurns) Queries(_ context.Context, conversationID string, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[conversationID], nil
}

// newTestServer builds a Server with a hermetic metrics registry and returns
// it together with its root handler.
func newTestServer(t *testing.T, ans answerer, turns TurnSource) (*Server, http.Handler) {
	t.Helper()

	reg := prometheus.NewRegistry()
	s, err := New(ans, turns, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, s.httpServer.Handler
}

func TestAsk_RejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"  "}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty query, got %d", w.Code)
	}
}

func TestAsk_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestAsk_StreamsResultsAndDone(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{results: []query.Result{
		{URL: "https://seriouseats.com/pasta", Name: "Pasta", Site: "seriouseats", Score: 80},
	}}
	_, h := newTestServer(t, ans, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"pasta recipes"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	body, _ := io.ReadAll(w.Body)
	text := string(body)
	if !strings.Contains(text, `"message_type":"result_batch"`) {
		t.Errorf("expected a result_batch frame, got:\n%s", text)
	}
	if !strings.Contains(text, "event: done") || !strings.Contains(text, "[DONE]") {
		t.Errorf("expected terminating done event, got:\n%s", text)
	}
}

func TestAsk_AnswerErrorEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{err: errors.New("model unavailable")}
	_, h := newTestServer(t, ans, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"pasta"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "event: error") {
		t.Errorf("expected error event in stream, got:\n%s", body)
	}
	if strings.Contains(string(body), "event: done") {
		t.Error("failed query must not emit a done event")
	}
}

func TestAsk_LoadsConversationHistory(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{}
	turns := &fakeTurns{stored: map[string][]string{
		"conv-1": {"best pizza in rome", "what about naples"},
	}}
	_, h := newTestServer(t, ans, turns)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"and florence?","conversation_id":"conv-1"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(ans.queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(ans.queries))
	}
	got := ans.queries[0].PrevQueries
	if len(got) != 2 || got[0] != "best pizza in rome" {
		t.Errorf("expected stored history on query context, got %v", got)
	}
}

func TestAsk_InlineHistoryOverridesStored(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{}
	turns := &fakeTurns{stored: map[string][]string{"conv-1": {"stored turn"}}}
	_, h := newTestServer(t, ans, turns)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"q","conversation_id":"conv-1","prev_queries":["inline turn"]}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	got := ans.queries[0].PrevQueries
	if len(got) != 1 || got[0] != "inline turn" {
		t.Errorf("expected inline history to win, got %v", got)
	}
}

func TestAsk_RecordsTurnOnSuccess(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{}
	turns := &fakeTurns{}
	_, h := newTestServer(t, ans, turns)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"spicy ramen","conversation_id":"conv-9"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(turns.appended) != 1 || turns.appended[0] != "conv-9|spicy ramen" {
		t.Errorf("expected one recorded turn, got %v", turns.appended)
	}
}

func TestAsk_DefaultsSiteToAll(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{}
	_, h := newTestServer(t, ans, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"q"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := ans.queries[0].Site; got != "all" {
		t.Errorf("expected site to default to all, got %q", got)
	}
}

func TestSSETransport_FramesAreParseableJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	tr := &sseTransport{w: w, flusher: w}

	batch := query.ResultBatch{MessageType: query.MessageTypeResultBatch, QueryID: "q-1"}
	if err := tr.SendMessage(context.Background(), batch); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	line := strings.TrimSpace(w.Body.String())
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("expected data frame, got %q", line)
	}
	var decoded query.ResultBatch
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &decoded); err != nil {
		t.Fatalf("frame payload is not valid JSON: %v", err)
	}
	if decoded.QueryID != "q-1" {
		t.Errorf("expected query_id round-trip, got %q", decoded.QueryID)
	}
}
