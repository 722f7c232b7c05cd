package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected default session TTL 24h, got %s", cfg.SessionTTL)
	}
	if cfg.MaxReschedule != 2 {
		t.Errorf("expected default reschedule cap 2, got %d", cfg.MaxReschedule)
	}
	if cfg.LLMTimeout != 8*time.Second {
		t.Errorf("expected default LLM timeout 8s, got %s", cfg.LLMTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("expected session TTL 30m, got %s", cfg.SessionTTL)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected UseMemoryQueue true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}
