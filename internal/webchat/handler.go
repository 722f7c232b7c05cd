// Package webchat exposes the conversation service to a browser widget
// over WebSocket, with an HTTP fallback for environments that block
// socket upgrades.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

const turnTimeout = 25 * time.Second

// Handler manages web chat connections and messages.
type Handler struct {
	service     dialog.Service
	transcripts *dialog.TranscriptStore
	logger      *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn // callerID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"` // "assistant" or "user"
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler. transcripts may be nil.
func NewHandler(service dialog.Service, transcripts *dialog.TranscriptStore, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: dialog service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:     service,
		transcripts: transcripts,
		logger:      logger.WithComponent("webchat"),
		sessions:    make(map[string]*wsConn),
	}
}

// CallerID builds the canonical caller ID for a webchat session, keeping
// web visitors in a separate namespace from phone numbers.
func CallerID(sessionID string) string {
	return "webchat:" + sessionID
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	callerID := CallerID(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	// Send history if available
	if h.transcripts != nil {
		if turns, err := h.transcripts.ListByCaller(r.Context(), callerID, 50); err == nil && len(turns) > 0 {
			history := make([]HistoryMessage, 0, len(turns))
			for _, t := range turns {
				history = append(history, HistoryMessage{
					Role:      t.Role,
					Text:      t.Text,
					Timestamp: t.At.Format(time.RFC3339),
				})
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
		}
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.sessions[callerID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[callerID] == wsc {
			delete(h.sessions, callerID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		reply := h.runTurn(r.Context(), callerID, msg.Text)
		h.SendToSession(callerID, reply)
	}
}

func (h *Handler) runTurn(ctx context.Context, callerID, text string) OutboundMessage {
	h.SendToSession(callerID, OutboundMessage{Type: "typing"})

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()
	reply, err := h.service.HandleTurn(turnCtx, callerID, text)
	if err != nil {
		h.logger.Error("turn failed", "error", err, "caller_id", callerID)
		return OutboundMessage{
			Type: "error",
			Text: "Sorry, something went wrong. Please try again.",
		}
	}
	return OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		Text:      reply,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// SendToSession sends a message to an active WebSocket session.
func (h *Handler) SendToSession(callerID string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.sessions[callerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(wsc.conn, msg)
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	reply := h.runTurn(r.Context(), CallerID(req.SessionID), req.Text)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"session_id": req.SessionID,
		"reply":      reply.Text,
		"type":       reply.Type,
	})
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	history := []HistoryMessage{}
	if h.transcripts != nil {
		turns, err := h.transcripts.ListByCaller(r.Context(), CallerID(sessionID), 100)
		if err != nil {
			h.logger.Error("failed to load history", "error", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		for _, t := range turns {
			history = append(history, HistoryMessage{
				Role:      t.Role,
				Text:      t.Text,
				Timestamp: t.At.Format(time.RFC3339),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}
