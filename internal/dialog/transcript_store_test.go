package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTranscriptStoreRecordTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	store := NewTranscriptStore(db)
	at := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO transcripts").
		WithArgs("+15550001111", ChatRoleUser, "book an appointment", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.RecordTurn(context.Background(), "+15550001111", ChatRoleUser, "book an appointment", at); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTranscriptStoreListByCaller(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	store := NewTranscriptStore(db)
	at := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"role", "text", "said_at"}).
		AddRow(ChatRoleUser, "book an appointment", at).
		AddRow(ChatRoleAssistant, "May I have the patient's full name?", at.Add(time.Second))
	mock.ExpectQuery("SELECT role, text, said_at FROM transcripts").
		WithArgs("+15550001111", 100).
		WillReturnRows(rows)

	turns, err := store.ListByCaller(context.Background(), "+15550001111", 0)
	if err != nil {
		t.Fatalf("ListByCaller failed: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != ChatRoleUser || turns[1].Role != ChatRoleAssistant {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
