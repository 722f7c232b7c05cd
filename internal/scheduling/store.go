package scheduling

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no appointment matches the reference.
	ErrNotFound = errors.New("scheduling: appointment not found")
	// ErrRescheduleLimit is returned when an appointment has already been
	// moved the maximum number of times.
	ErrRescheduleLimit = errors.New("scheduling: reschedule limit reached")
	// ErrPastWindow is returned for a requested window that has already
	// started.
	ErrPastWindow = errors.New("scheduling: window is in the past")
	// ErrOutsideHours is returned for a requested window outside the
	// clinic's bookable blocks.
	ErrOutsideHours = errors.New("scheduling: window is outside clinic hours")
)

// Store persists appointments and answers availability questions. The
// Book implementation must be atomic: two concurrent requests for the
// same doctor and window may not both succeed.
type Store interface {
	Book(ctx context.Context, req BookRequest) (BookResult, error)
	Cancel(ctx context.Context, bookingRef string) (*Appointment, error)
	Reschedule(ctx context.Context, bookingRef string, newStart, newEnd time.Time, maxReschedules int) (BookResult, error)
	GetByRef(ctx context.Context, bookingRef string) (*Appointment, error)
	ListUpcoming(ctx context.Context, patientPhone string, from time.Time) ([]Appointment, error)
	ListBooked(ctx context.Context, doctor string, dayStart, dayEnd time.Time) ([]TimeWindow, error)
}

// Slot layout for a working day: morning block, lunch break, afternoon
// block, 30-minute appointments.
const (
	SlotDuration       = 30 * time.Minute
	morningStartHour   = 9
	morningEndHour     = 12
	afternoonStartHour = 14
	afternoonEndHour   = 17
)

// WithinClinicHours reports whether the window lies entirely inside one
// of the day's bookable blocks.
func WithinClinicHours(start, end time.Time) bool {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for _, block := range [][2]int{
		{morningStartHour, morningEndHour},
		{afternoonStartHour, afternoonEndHour},
	} {
		blockStart := day.Add(time.Duration(block[0]) * time.Hour)
		blockEnd := day.Add(time.Duration(block[1]) * time.Hour)
		if !start.Before(blockStart) && !end.After(blockEnd) {
			return true
		}
	}
	return false
}

// DayTemplate returns every bookable window for a doctor on the given
// calendar day, ignoring existing bookings.
func DayTemplate(doctor string, day time.Time) []TimeWindow {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var windows []TimeWindow
	for _, block := range [][2]int{
		{morningStartHour, morningEndHour},
		{afternoonStartHour, afternoonEndHour},
	} {
		start := day.Add(time.Duration(block[0]) * time.Hour)
		end := day.Add(time.Duration(block[1]) * time.Hour)
		for cur := start; cur.Before(end); cur = cur.Add(SlotDuration) {
			windows = append(windows, TimeWindow{Doctor: doctor, Start: cur, End: cur.Add(SlotDuration)})
		}
	}
	return windows
}
