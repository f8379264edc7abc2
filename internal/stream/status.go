// Package stream pushes session status changes to the recorder page over a
// WebSocket so the page does not have to poll.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 5 * time.Second

// expiredSnapshot is sent when the session no longer exists.
var expiredSnapshot = map[string]string{"status": "expired"}

// StatusHandler serves GET /ws/status/{sessionId}.
type StatusHandler struct {
	sessions store.SessionStore
	interval time.Duration
}

// NewStatusHandler creates a StatusHandler that checks the store every interval.
func NewStatusHandler(sessions store.SessionStore, interval time.Duration) *StatusHandler {
	return &StatusHandler{sessions: sessions, interval: interval}
}

// RegisterRoutes registers the status stream route.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/status/{sessionId}", h.ServeHTTP)
}

// ServeHTTP upgrades the connection and sends a snapshot on every status
// change until the session settles or disappears.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	// The client never sends anything; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last domain.Status
	for {
		s, ok := h.sessions.Get(sessionID)
		if !ok {
			if err := writeJSON(ctx, ws, expiredSnapshot); err != nil {
				slog.Debug("Failed to send expired status", "error", err, "session_id", sessionID)
			}
			return
		}

		if s.Status != last {
			if err := writeJSON(ctx, ws, s.Snapshot()); err != nil {
				slog.Debug("Status stream write failed", "error", err, "session_id", sessionID)
				return
			}
			last = s.Status
		}
		if s.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
