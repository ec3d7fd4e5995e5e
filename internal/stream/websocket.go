package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/emergensee/emergensee-server/internal/simulation"
	"github.com/go-chi/chi/v5"
)

// WebSocketHandler streams a session's transcript over a WebSocket: the
// backlog on connect, then live entries as exchanges happen.
type WebSocketHandler struct {
	engine        *simulation.Service
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(engine *simulation.Service, hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		engine:        engine,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents the client-to-server WebSocket message structure.
type wsMessage struct {
	Type string `json:"type"`
}

// wsUpdate represents a server-to-client transcript update.
type wsUpdate struct {
	Type    string                    `json:"type"`
	Entries []*domain.TranscriptEntry `json:"entries,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Info("transcript stream requested", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	// Reject before upgrading so the client gets a proper HTTP status.
	if _, err := h.engine.Snapshot(r.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := h.hub.Subscribe(sessionID)
	defer unsubscribe()

	// Send the backlog after subscribing so no exchange falls in the gap.
	backlog, err := h.engine.TranscriptSince(ctx, sessionID, 0)
	if err != nil {
		slog.Warn("failed to load transcript backlog", "error", err, "session_id", sessionID)
		return
	}
	if err := h.writeUpdate(ws, wsUpdate{Type: "backlog", Entries: backlog}); err != nil {
		return
	}
	lastSeq := int64(0)
	if len(backlog) > 0 {
		lastSeq = backlog[len(backlog)-1].Seq
	}

	go h.readLoop(ctx, cancel, ws, sessionID)

	for {
		select {
		case entries := <-updates:
			var fresh []*domain.TranscriptEntry
			for _, e := range entries {
				if e.Seq > lastSeq {
					fresh = append(fresh, e)
					lastSeq = e.Seq
				}
			}
			if len(fresh) == 0 {
				continue
			}
			if err := h.writeUpdate(ws, wsUpdate{Type: "entries", Entries: fresh}); err != nil {
				slog.Debug("transcript stream write failed", "error", err, "session_id", sessionID)
				return
			}
		case <-ctx.Done():
			slog.Info("transcript stream ended", "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop drains client messages, answering pings and cancelling the stream
// when the client disconnects.
func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, sessionID string) {
	defer cancel()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := h.writeUpdate(ws, wsUpdate{Type: "pong"}); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeUpdate(ws *websocket.Conn, u wsUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
