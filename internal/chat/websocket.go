package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/glesp/smart-auto-trader/internal/identity"
)

// WebSocketHandler handles WebSocket-based chat sessions. It speaks the same
// dialogue engine as the HTTP endpoint; the transport only changes framing.
type WebSocketHandler struct {
	manager       *DialogueManager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(manager *DialogueManager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		manager:       manager,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents an inbound WebSocket frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsReply represents an outbound WebSocket frame.
type wsReply struct {
	Type     string        `json:"type"`
	Response *ChatResponse `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket chat connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.messageLoop(ctx, ws, userID)
	slog.Info("WebSocket chat session ended", "user_id", userID)
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

func (h *WebSocketHandler) messageLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Fallback: treat the raw frame as the message text.
			msg = wsMessage{Type: "message", Content: string(message)}
		}

		switch msg.Type {
		case "message":
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				if err := h.writeJSON(ws, wsReply{Type: "error", Error: "message is required"}); err != nil {
					slog.Debug("Failed to send validation error", "error", err)
				}
				continue
			}
			resp := h.manager.ProcessMessage(ctx, userID, text)
			if err := h.writeJSON(ws, wsReply{Type: "response", Response: resp}); err != nil {
				slog.Warn("WebSocket write error", "error", err, "user_id", userID)
				return
			}
		case "reset":
			if err := h.manager.ResetSession(ctx, userID); err != nil {
				slog.Error("Failed to reset chat session", "user_id", userID, "error", err)
				if err := h.writeJSON(ws, wsReply{Type: "error", Error: "failed to reset session"}); err != nil {
					slog.Debug("Failed to send reset error", "error", err)
				}
				continue
			}
			if err := h.writeJSON(ws, wsReply{Type: "reset"}); err != nil {
				slog.Debug("Failed to send reset acknowledgment", "error", err)
			}
		case "ping":
			if err := h.writeJSON(ws, wsReply{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
