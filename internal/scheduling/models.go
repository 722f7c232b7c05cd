package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks an appointment through its lifecycle.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
)

// Active reports whether the appointment still occupies its time window.
// Cancelled appointments release their slot; everything else holds it.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Appointment is a committed booking for one patient with one doctor.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	BookingRef      string    `json:"booking_ref"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	Hospital        string    `json:"hospital"`
	Department      string    `json:"department"`
	Doctor          string    `json:"doctor"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          Status    `json:"status"`
	RescheduleCount int       `json:"reschedule_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TimeWindow is a bookable interval for a doctor. Intervals are half-open:
// [Start, End), so back-to-back windows do not overlap.
type TimeWindow struct {
	Doctor string    `json:"doctor"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// BookRequest carries everything needed to commit a booking.
type BookRequest struct {
	PatientName  string
	PatientPhone string
	Hospital     string
	Department   string
	Doctor       string
	Start        time.Time
	End          time.Time
}

// Conflict describes a booking attempt that lost to an existing appointment.
type Conflict struct {
	Doctor string
	Start  time.Time
	End    time.Time
}

// BookResult is the outcome of a commit attempt: exactly one of Appointment
// or Conflict is set.
type BookResult struct {
	Appointment *Appointment
	Conflict    *Conflict
}

// NewBookingRef issues a short human-readable reference, e.g. APPT-3FA29C41.
func NewBookingRef() string {
	id := uuid.NewString()
	return "APPT-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}
