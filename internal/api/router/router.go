// Package router assembles the HTTP surface: the conversation API, the
// Twilio webhooks, the web chat widget, and the JWT-protected admin
// endpoints.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/meridianhealth/hospital-ai-platform/internal/http/middleware"
	"github.com/meridianhealth/hospital-ai-platform/internal/webchat"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *dialog.Handler
	TwilioWebhooks      *handlers.TwilioWebhookHandler
	AdminAppointments   *handlers.AdminAppointmentsHandler
	Webchat             *webchat.Handler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ConversationHandler != nil {
			public.Post("/v1/conversation/turns", cfg.ConversationHandler.HandleTurn)
		}
		if cfg.TwilioWebhooks != nil {
			public.Route("/webhooks/twilio", func(r chi.Router) {
				r.Post("/sms", cfg.TwilioWebhooks.HandleSMS)
				r.Post("/voice", cfg.TwilioWebhooks.HandleVoice)
			})
		}
		if cfg.Webchat != nil {
			public.Route("/webchat", func(r chi.Router) {
				r.Get("/ws", cfg.Webchat.HandleWebSocket)
				r.Post("/message", cfg.Webchat.HandleMessage)
				r.Get("/history", cfg.Webchat.HandleHistory)
			})
		}
	})

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminAuthSecret != "" && cfg.AdminAppointments != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/appointments", cfg.AdminAppointments.ListAppointments)
			admin.Get("/appointments/{ref}", cfg.AdminAppointments.GetAppointment)
			admin.Delete("/appointments/{ref}", cfg.AdminAppointments.CancelAppointment)
			admin.Get("/availability", cfg.AdminAppointments.ListAvailability)
			admin.Get("/transcripts/{callerID}", cfg.AdminAppointments.GetTranscript)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
