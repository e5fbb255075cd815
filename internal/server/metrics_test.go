package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

var errTestBoom = errors.New("boom")

// newTestRegistry returns a fresh registry so metric registrations in one
// test cannot collide with another.
func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func TestMetrics_AskRequestCounted(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"q"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mw := httptest.NewRecorder()
	h.ServeHTTP(mw, mreq)

	body := mw.Body.String()
	if !strings.Contains(body, `askweb_ask_requests_total{outcome="ok"} 1`) {
		t.Errorf("expected one ok ask request in metrics, got:\n%s", body)
	}
	if !strings.Contains(body, "askweb_http_requests_total") {
		t.Error("expected http request counters to be exported")
	}
}

func TestMetrics_ErrorOutcomeLabeled(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{err: errTestBoom}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"q"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	mw := httptest.NewRecorder()
	h.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(mw.Body.String(), `askweb_ask_requests_total{outcome="error"} 1`) {
		t.Errorf("expected error outcome counter, got:\n%s", mw.Body.String())
	}
}

func TestMetrics_ActiveStreamsReturnsToZero(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"q"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	mw := httptest.NewRecorder()
	h.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(mw.Body.String(), "askweb_ask_active_streams 0") {
		t.Errorf("expected active streams gauge back at zero, got:\n%s", mw.Body.String())
	}
}

func TestInstrument_CapturesStatusCode(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &fakeAnswerer{}, nil)

	// Empty query yields a 400 on the instrumented ask handler.
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	mw := httptest.NewRecorder()
	h.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(mw.Body.String(), `askweb_http_requests_total{code="400",handler="ask",method="POST"} 1`) {
		t.Errorf("expected 400 counted against ask handler, got:\n%s", mw.Body.String())
	}
}
