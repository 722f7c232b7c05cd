package dialog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TranscriptSink records conversation turns durably for audit and
// quality review. Failures are logged by the caller, never surfaced to
// the conversation.
type TranscriptSink interface {
	RecordTurn(ctx context.Context, callerID, role, text string, at time.Time) error
}

// TranscriptStore persists turns in Postgres through database/sql.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a transcript store.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		panic("dialog: db cannot be nil")
	}
	return &TranscriptStore{db: db}
}

func (s *TranscriptStore) RecordTurn(ctx context.Context, callerID, role, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO transcripts (caller_id, role, text, said_at)
VALUES ($1, $2, $3, $4)`, callerID, role, text, at)
	if err != nil {
		return fmt.Errorf("dialog: failed to record transcript turn: %w", err)
	}
	return nil
}

// ListByCaller returns a caller's recorded turns, oldest first, capped
// at limit.
func (s *TranscriptStore) ListByCaller(ctx context.Context, callerID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT role, text, said_at FROM transcripts
WHERE caller_id = $1
ORDER BY said_at ASC, id ASC
LIMIT $2`, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("dialog: failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.At); err != nil {
			return nil, fmt.Errorf("dialog: failed to scan transcript row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialog: failed to list transcripts: %w", err)
	}
	return out, nil
}
