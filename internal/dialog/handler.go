package dialog

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Handler exposes the conversation entry point over REST for webchat
// clients and internal tools.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation HTTP handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("dialog: service cannot be nil")
	}
	return &Handler{
		service: service,
		logger:  logger.WithComponent("dialog_http"),
	}
}

type turnRequest struct {
	CallerID  string `json:"caller_id"`
	Utterance string `json:"utterance"`
}

type turnResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleTurn handles POST /v1/conversation/turns.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.CallerID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "caller_id is required"})
		return
	}

	reply, err := h.service.HandleTurn(r.Context(), req.CallerID, req.Utterance)
	if err != nil {
		h.logger.Error("turn failed", "caller_id", req.CallerID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "conversation temporarily unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Reply: reply})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
