package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		if logger := New(level); logger == nil || logger.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestWithComponentNilSafe(t *testing.T) {
	var l *Logger
	if got := l.WithComponent("dialog"); got == nil {
		t.Fatal("WithComponent on nil logger returned nil")
	}
}
