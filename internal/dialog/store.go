package dialog

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by Get when no session exists for the
// caller.
var ErrSessionNotFound = errors.New("dialog: session not found")

// SessionStore persists per-caller dialog state between turns. Every
// implementation applies the configured inactivity TTL so abandoned
// conversations expire instead of accumulating forever.
type SessionStore interface {
	Get(ctx context.Context, callerID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, callerID string) error
}
