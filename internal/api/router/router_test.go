package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/internal/http/handlers"
	"github.com/meridianhealth/hospital-ai-platform/internal/http/middleware"
	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/internal/triage"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.New("error")
	scheduler := scheduling.NewService(scheduling.NewMemoryStore(), logger)
	sessions := dialog.NewMemorySessionStore(time.Hour)
	t.Cleanup(sessions.Close)

	engine := dialog.NewEngine(
		sessions,
		scheduler,
		triage.NewMapper(nil, logger),
		dialog.NewIntentClassifier(nil, "", time.Second, logger),
		dialog.NewSlotExtractor(nil, "", time.Second, logger),
		logger,
	)

	cfg := &Config{
		Logger:              logger,
		ConversationHandler: dialog.NewHandler(engine, logger),
		TwilioWebhooks:      handlers.NewTwilioWebhookHandler("", engine, logger),
		AdminAppointments:   handlers.NewAdminAppointmentsHandler(scheduler, nil, logger),
		AdminAuthSecret:     "router-test-secret",
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterConversationTurn(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversation/turns",
		strings.NewReader(`{"caller_id":"+15550001111","utterance":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Meridian Health") {
		t.Fatalf("expected greeting in reply, got %s", rr.Body.String())
	}
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments?phone=%2B15550001111", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAdminWithJWT(t *testing.T) {
	router := newTestRouter(t)

	claims := middleware.AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("router-test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments?phone=%2B15550001111", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}
