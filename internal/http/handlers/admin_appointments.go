package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// AdminAppointmentsHandler exposes read and cancel operations over the
// appointment book for the operator dashboard.
type AdminAppointmentsHandler struct {
	scheduler   *scheduling.Service
	transcripts *dialog.TranscriptStore
	logger      *logging.Logger
}

// NewAdminAppointmentsHandler creates the admin handler. transcripts may
// be nil when transcript persistence is disabled.
func NewAdminAppointmentsHandler(scheduler *scheduling.Service, transcripts *dialog.TranscriptStore, logger *logging.Logger) *AdminAppointmentsHandler {
	if scheduler == nil {
		panic("handlers: scheduler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAppointmentsHandler{
		scheduler:   scheduler,
		transcripts: transcripts,
		logger:      logger.WithComponent("admin_appointments"),
	}
}

// ListAppointments handles GET /admin/appointments?phone=+1555...
func (h *AdminAppointmentsHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		http.Error(w, "phone query parameter required", http.StatusBadRequest)
		return
	}
	appts, err := h.scheduler.ListUpcoming(r.Context(), phone)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err, "phone", phone)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// GetAppointment handles GET /admin/appointments/{ref}.
func (h *AdminAppointmentsHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	appt, err := h.scheduler.GetByRef(r.Context(), ref)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get appointment failed", "error", err, "booking_ref", ref)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment handles DELETE /admin/appointments/{ref}.
func (h *AdminAppointmentsHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	appt, err := h.scheduler.Cancel(r.Context(), ref)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("cancel appointment failed", "error", err, "booking_ref", ref)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListAvailability handles GET /admin/availability?doctor=...&date=2026-09-14.
func (h *AdminAppointmentsHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	doctor := r.URL.Query().Get("doctor")
	dateStr := r.URL.Query().Get("date")
	if doctor == "" || dateStr == "" {
		http.Error(w, "doctor and date query parameters required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	windows, err := h.scheduler.FindSlots(r.Context(), doctor, day)
	if err != nil {
		h.logger.Error("find slots failed", "error", err, "doctor", doctor)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor": doctor, "date": dateStr, "slots": windows})
}

// GetTranscript handles GET /admin/transcripts/{callerID}.
func (h *AdminAppointmentsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		http.Error(w, "transcripts not configured", http.StatusNotFound)
		return
	}
	callerID := chi.URLParam(r, "callerID")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	turns, err := h.transcripts.ListByCaller(r.Context(), callerID, limit)
	if err != nil {
		h.logger.Error("list transcript failed", "error", err, "caller_id", callerID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caller_id": callerID, "turns": turns})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
