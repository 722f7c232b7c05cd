package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGXPool is the subset of pgxpool.Pool the store uses; pgxmock
// satisfies it in tests.
type PGXPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists appointments in Postgres. The conditional
// insert rejects windows already visible as booked; the schema's GiST
// exclusion constraint on (doctor, window) closes the race two
// concurrent inserts would otherwise win together, since neither
// statement can see the other's uncommitted row.
type PostgresStore struct {
	pool PGXPool
}

// NewPostgresStore creates a Postgres-backed appointment store.
func NewPostgresStore(pool PGXPool) *PostgresStore {
	if pool == nil {
		panic("scheduling: pool is required")
	}
	return &PostgresStore{pool: pool}
}

const appointmentColumns = `id, booking_ref, patient_name, patient_phone, hospital, department, doctor, start_at, end_at, status, reschedule_count, created_at, updated_at`

// The WHERE NOT EXISTS clause declines windows that are already booked
// and committed; the half-open overlap test mirrors Overlaps. Races
// against uncommitted inserts are caught by the exclusion constraint.
const insertAppointmentSQL = `
INSERT INTO appointments (booking_ref, patient_name, patient_phone, hospital, department, doctor, start_at, end_at, status)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, 'confirmed'
WHERE NOT EXISTS (
    SELECT 1 FROM appointments
    WHERE lower(doctor) = lower($6)
      AND status <> 'cancelled'
      AND start_at < $8
      AND end_at > $7
)
RETURNING ` + appointmentColumns

const conflictSQL = `
SELECT doctor, start_at, end_at FROM appointments
WHERE lower(doctor) = lower($1)
  AND status <> 'cancelled'
  AND start_at < $3
  AND end_at > $2
ORDER BY start_at
LIMIT 1`

func (s *PostgresStore) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	row := s.pool.QueryRow(ctx, insertAppointmentSQL,
		NewBookingRef(), req.PatientName, req.PatientPhone,
		req.Hospital, req.Department, req.Doctor, req.Start, req.End)

	appt, err := scanAppointment(row)
	if err == nil {
		return BookResult{Appointment: appt}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && !isExclusionViolation(err) {
		return BookResult{}, fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	// Insert declined: surface the winning appointment as the conflict.
	var c Conflict
	if err := s.pool.QueryRow(ctx, conflictSQL, req.Doctor, req.Start, req.End).
		Scan(&c.Doctor, &c.Start, &c.End); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost an exclusion race to a transaction that has not
			// committed yet; report the requested window as the conflict.
			return BookResult{Conflict: &Conflict{Doctor: req.Doctor, Start: req.Start, End: req.End}}, nil
		}
		return BookResult{}, fmt.Errorf("scheduling: conflict lookup: %w", err)
	}
	return BookResult{Conflict: &c}, nil
}

// isExclusionViolation reports SQLSTATE 23P01, raised by the
// appointments_no_doctor_overlap constraint when a concurrent booking
// holds the window.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (s *PostgresStore) Cancel(ctx context.Context, bookingRef string) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE appointments
SET status = 'cancelled', updated_at = now()
WHERE booking_ref = $1 AND status <> 'cancelled'
RETURNING `+appointmentColumns, bookingRef)

	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: cancel appointment: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) Reschedule(ctx context.Context, bookingRef string, newStart, newEnd time.Time, maxReschedules int) (BookResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BookResult{}, fmt.Errorf("scheduling: begin reschedule: %w", err)
	}
	defer tx.Rollback(ctx)

	var doctor string
	var count int
	err = tx.QueryRow(ctx, `
SELECT doctor, reschedule_count FROM appointments
WHERE booking_ref = $1 AND status <> 'cancelled'
FOR UPDATE`, bookingRef).Scan(&doctor, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return BookResult{}, ErrNotFound
	}
	if err != nil {
		return BookResult{}, fmt.Errorf("scheduling: lock appointment: %w", err)
	}
	if count >= maxReschedules {
		return BookResult{}, ErrRescheduleLimit
	}

	var c Conflict
	err = tx.QueryRow(ctx, `
SELECT doctor, start_at, end_at FROM appointments
WHERE lower(doctor) = lower($1)
  AND booking_ref <> $2
  AND status <> 'cancelled'
  AND start_at < $4
  AND end_at > $3
ORDER BY start_at
LIMIT 1`, doctor, bookingRef, newStart, newEnd).Scan(&c.Doctor, &c.Start, &c.End)
	if err == nil {
		return BookResult{Conflict: &c}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return BookResult{}, fmt.Errorf("scheduling: reschedule conflict lookup: %w", err)
	}

	row := tx.QueryRow(ctx, `
UPDATE appointments
SET start_at = $2, end_at = $3, status = 'rescheduled',
    reschedule_count = reschedule_count + 1, updated_at = now()
WHERE booking_ref = $1
RETURNING `+appointmentColumns, bookingRef, newStart, newEnd)

	appt, err := scanAppointment(row)
	if err != nil {
		// The conflict SELECT above cannot see a concurrent Book's
		// uncommitted row; the exclusion constraint catches that race
		// at the update itself.
		if isExclusionViolation(err) {
			return BookResult{Conflict: &Conflict{Doctor: doctor, Start: newStart, End: newEnd}}, nil
		}
		return BookResult{}, fmt.Errorf("scheduling: apply reschedule: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return BookResult{}, fmt.Errorf("scheduling: commit reschedule: %w", err)
	}
	return BookResult{Appointment: appt}, nil
}

func (s *PostgresStore) GetByRef(ctx context.Context, bookingRef string) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+appointmentColumns+` FROM appointments WHERE booking_ref = $1`, bookingRef)

	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListUpcoming(ctx context.Context, patientPhone string, from time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+appointmentColumns+` FROM appointments
WHERE patient_phone = $1 AND status <> 'cancelled' AND end_at >= $2
ORDER BY start_at`, patientPhone, from)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list upcoming: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list upcoming: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListBooked(ctx context.Context, doctor string, dayStart, dayEnd time.Time) ([]TimeWindow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT doctor, start_at, end_at FROM appointments
WHERE lower(doctor) = lower($1)
  AND status <> 'cancelled'
  AND start_at < $3
  AND end_at > $2
ORDER BY start_at`, doctor, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list booked: %w", err)
	}
	defer rows.Close()

	var out []TimeWindow
	for rows.Next() {
		var w TimeWindow
		if err := rows.Scan(&w.Doctor, &w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("scheduling: scan window: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list booked: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.BookingRef, &a.PatientName, &a.PatientPhone,
		&a.Hospital, &a.Department, &a.Doctor, &a.Start, &a.End,
		&a.Status, &a.RescheduleCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
