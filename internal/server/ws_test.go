package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askweb/askweb-go/internal/query"
)

// dialWS starts the server's handler on a test listener and opens a
// WebSocket connection to /api/ws.
func dialWS(t *testing.T, ans answerer, turns TurnSource) *websocket.Conn {
	t.Helper()

	_, h := newTestServer(t, ans, turns)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWS_QueryRoundTrip(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{results: []query.Result{
		{URL: "https://npr.org/story", Name: "Story", Site: "npr", Score: 75},
	}}
	conn := dialWS(t, ans, nil)

	if err := conn.WriteJSON(askRequest{Query: "latest news", QueryID: "q-7"}); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	// First frame: the result batch.
	var batch query.ResultBatch
	if err := conn.ReadJSON(&batch); err != nil {
		t.Fatalf("reading batch: %v", err)
	}
	if batch.MessageType != query.MessageTypeResultBatch || len(batch.Results) != 1 {
		t.Errorf("unexpected batch %+v", batch)
	}

	// Second frame: completion.
	var done completeMessage
	if err := conn.ReadJSON(&done); err != nil {
		t.Fatalf("reading completion: %v", err)
	}
	if done.MessageType != "complete" || done.QueryID != "q-7" {
		t.Errorf("unexpected completion %+v", done)
	}
}

func TestWS_EmptyQueryYieldsErrorMessage(t *testing.T) {
	t.Parallel()

	conn := dialWS(t, &fakeAnswerer{}, nil)

	if err := conn.WriteJSON(askRequest{Query: ""}); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var msg errorMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading error message: %v", err)
	}
	if msg.MessageType != "error" || msg.Error == "" {
		t.Errorf("expected in-band error message, got %+v", msg)
	}
}

func TestWS_AnswerFailureReportedInBand(t *testing.T) {
	t.Parallel()

	conn := dialWS(t, &fakeAnswerer{err: errTestBoom}, nil)

	if err := conn.WriteJSON(askRequest{Query: "q", QueryID: "q-1"}); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var msg errorMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if msg.MessageType != "error" || msg.QueryID == "" {
		t.Errorf("expected error message carrying the query id, got %+v", msg)
	}
}

func TestWS_MultipleQueriesOneConnection(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{}
	conn := dialWS(t, ans, nil)

	for _, q := range []string{"first", "second"} {
		if err := conn.WriteJSON(askRequest{Query: q}); err != nil {
			t.Fatalf("writing %q: %v", q, err)
		}
		var done completeMessage
		if err := conn.ReadJSON(&done); err != nil {
			t.Fatalf("reading completion for %q: %v", q, err)
		}
		if done.MessageType != "complete" {
			t.Errorf("query %q: unexpected frame %+v", q, done)
		}
	}

	ans.mu.Lock()
	defer ans.mu.Unlock()
	if len(ans.queries) != 2 {
		t.Errorf("expected 2 answered queries, got %d", len(ans.queries))
	}
}
