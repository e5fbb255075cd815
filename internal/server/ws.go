package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askweb/askweb-go/internal/logging"
)

// wsUpgrader upgrades /api/ws requests. Origin checking is left permissive:
// the API is bearer-authenticated and typically bound to localhost.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsWriteTimeout bounds one WebSocket frame write.
const wsWriteTimeout = 10 * time.Second

// handleWS handles GET /api/ws. Each text frame from the client is one
// askRequest; the pipeline's messages stream back on the same connection,
// followed by a "complete" message. Queries on one connection are answered
// sequentially in arrival order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Warn("ws: upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	transport := &wsTransport{conn: conn}

	for {
		var req askRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ws: read failed", slog.Any("error", err))
			}
			return
		}
		if req.Query == "" {
			_ = transport.SendMessage(r.Context(), errorMessage{
				MessageType: "error",
				QueryID:     req.QueryID,
				Error:       "query is required",
			})
			continue
		}

		s.serveWSQuery(r.Context(), &req, transport, log)
	}
}

// serveWSQuery answers one WebSocket query and reports its completion.
func (s *Server) serveWSQuery(ctx context.Context, req *askRequest, transport *wsTransport, log *slog.Logger) {
	q, err := s.buildQuery(ctx, req)
	if err != nil {
		log.Error("ws: building query failed", slog.Any("error", err))
		_ = transport.SendMessage(ctx, errorMessage{MessageType: "error", QueryID: req.QueryID, Error: "internal error"})
		return
	}

	askCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()
	start := time.Now()

	_, err = s.answerer.Answer(askCtx, q, transport)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		log.Error("ws: query failed",
			slog.String("query_id", q.QueryID),
			slog.Any("error", err),
		)
		_ = transport.SendMessage(ctx, errorMessage{MessageType: "error", QueryID: q.QueryID, Error: err.Error()})
	} else {
		s.recordTurn(ctx, req, log)
		_ = transport.SendMessage(ctx, completeMessage{MessageType: "complete", QueryID: q.QueryID})
	}

	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// wsTransport delivers pipeline messages as WebSocket text frames.
// gorilla/websocket allows one concurrent writer, so sends are serialized.
type wsTransport struct {
	// mu serializes writes to the connection.
	mu sync.Mutex
	// conn is the upgraded WebSocket connection.
	conn *websocket.Conn
}

// SendMessage writes one message as a JSON text frame. Any write error
// means the client is gone.
func (t *wsTransport) SendMessage(_ context.Context, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}
