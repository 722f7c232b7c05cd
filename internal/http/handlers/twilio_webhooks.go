package handlers

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

var twilioWebhookTracer = otel.Tracer("hospital.internal.http.handlers.twilio")

const turnTimeout = 25 * time.Second

// TwilioWebhookHandler bridges Twilio SMS and voice webhooks into the
// conversation service. Each inbound message is one dialog turn; the
// reply rides back in the TwiML response.
type TwilioWebhookHandler struct {
	authToken string
	service   dialog.Service
	logger    *logging.Logger
}

// NewTwilioWebhookHandler creates the webhook handler. An empty authToken
// disables signature validation (local development only).
func NewTwilioWebhookHandler(authToken string, service dialog.Service, logger *logging.Logger) *TwilioWebhookHandler {
	if service == nil {
		panic("handlers: dialog service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWebhookHandler{
		authToken: authToken,
		service:   service,
		logger:    logger.WithComponent("twilio_webhooks"),
	}
}

// HandleSMS handles POST /webhooks/twilio/sms.
func (h *TwilioWebhookHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioWebhookTracer.Start(r.Context(), "http.twilio.sms")
	defer span.End()

	if h.authToken != "" {
		if !ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	from := NormalizeE164(r.FormValue("From"))
	body := strings.TrimSpace(r.FormValue("Body"))
	span.SetAttributes(
		attribute.String("hospital.twilio.message_sid", r.FormValue("MessageSid")),
		attribute.String("hospital.twilio.from", from),
	)
	if from == "" || body == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio payload", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()
	reply, err := h.service.HandleTurn(turnCtx, from, body)
	if err != nil {
		h.logger.Error("turn failed", "error", err, "caller_id", from)
		span.RecordError(err)
		reply = "Sorry, something went wrong on our side. Please try again in a moment."
	}

	writeTwiML(w, `<Response><Message>`+xmlEscape(reply)+`</Message></Response>`)
}

// HandleVoice handles POST /webhooks/twilio/voice. The caller's speech
// result (Twilio <Gather input="speech">) is the utterance; the reply is
// spoken back and the gather re-armed so the call stays conversational.
func (h *TwilioWebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioWebhookTracer.Start(r.Context(), "http.twilio.voice")
	defer span.End()

	if h.authToken != "" {
		if !ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio voice signature")
			span.RecordError(errors.New("invalid twilio voice signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	from := NormalizeE164(r.FormValue("From"))
	speech := strings.TrimSpace(r.FormValue("SpeechResult"))
	span.SetAttributes(
		attribute.String("hospital.twilio.call_sid", r.FormValue("CallSid")),
		attribute.String("hospital.twilio.from", from),
	)
	if from == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// First leg of the call carries no speech; greet and start gathering.
	utterance := speech
	if utterance == "" {
		utterance = "hello"
	}

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()
	reply, err := h.service.HandleTurn(turnCtx, from, utterance)
	if err != nil {
		h.logger.Error("voice turn failed", "error", err, "caller_id", from)
		span.RecordError(err)
		reply = "Sorry, something went wrong on our side. Please call back in a moment."
		writeTwiML(w, `<Response><Say>`+xmlEscape(reply)+`</Say><Hangup/></Response>`)
		return
	}

	writeTwiML(w,
		`<Response><Gather input="speech" action="`+r.URL.Path+`" method="POST" speechTimeout="auto"><Say>`+
			xmlEscape(reply)+
			`</Say></Gather></Response>`)
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + body))
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
