package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for development and tests. A single
// mutex guards the appointment map, which makes check-then-commit atomic
// without per-doctor lock bookkeeping.
type MemoryStore struct {
	mu    sync.Mutex
	byRef map[string]*Appointment
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory appointment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRef: make(map[string]*Appointment),
		now:   time.Now,
	}
}

func (s *MemoryStore) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conflict := s.findConflictLocked(req.Doctor, req.Start, req.End, ""); conflict != nil {
		return BookResult{Conflict: conflict}, nil
	}

	now := s.now().UTC()
	appt := &Appointment{
		ID:           uuid.New(),
		BookingRef:   NewBookingRef(),
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		Hospital:     req.Hospital,
		Department:   req.Department,
		Doctor:       req.Doctor,
		Start:        req.Start,
		End:          req.End,
		Status:       StatusConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byRef[appt.BookingRef] = appt

	out := *appt
	return BookResult{Appointment: &out}, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, bookingRef string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byRef[bookingRef]
	if !ok || appt.Status == StatusCancelled {
		return nil, ErrNotFound
	}
	appt.Status = StatusCancelled
	appt.UpdatedAt = s.now().UTC()

	out := *appt
	return &out, nil
}

func (s *MemoryStore) Reschedule(ctx context.Context, bookingRef string, newStart, newEnd time.Time, maxReschedules int) (BookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byRef[bookingRef]
	if !ok || appt.Status == StatusCancelled {
		return BookResult{}, ErrNotFound
	}
	if appt.RescheduleCount >= maxReschedules {
		return BookResult{}, ErrRescheduleLimit
	}
	if conflict := s.findConflictLocked(appt.Doctor, newStart, newEnd, bookingRef); conflict != nil {
		return BookResult{Conflict: conflict}, nil
	}

	appt.Start = newStart
	appt.End = newEnd
	appt.Status = StatusRescheduled
	appt.RescheduleCount++
	appt.UpdatedAt = s.now().UTC()

	out := *appt
	return BookResult{Appointment: &out}, nil
}

func (s *MemoryStore) GetByRef(ctx context.Context, bookingRef string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byRef[bookingRef]
	if !ok {
		return nil, ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (s *MemoryStore) ListUpcoming(ctx context.Context, patientPhone string, from time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, appt := range s.byRef {
		if appt.PatientPhone != patientPhone || !appt.Status.Active() {
			continue
		}
		if appt.End.Before(from) {
			continue
		}
		out = append(out, *appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) ListBooked(ctx context.Context, doctor string, dayStart, dayEnd time.Time) ([]TimeWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TimeWindow
	for _, appt := range s.byRef {
		if !strings.EqualFold(appt.Doctor, doctor) || !appt.Status.Active() {
			continue
		}
		if Overlaps(appt.Start, appt.End, dayStart, dayEnd) {
			out = append(out, TimeWindow{Doctor: appt.Doctor, Start: appt.Start, End: appt.End})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) findConflictLocked(doctor string, start, end time.Time, skipRef string) *Conflict {
	for ref, appt := range s.byRef {
		if ref == skipRef || !appt.Status.Active() {
			continue
		}
		if !strings.EqualFold(appt.Doctor, doctor) {
			continue
		}
		if Overlaps(appt.Start, appt.End, start, end) {
			return &Conflict{Doctor: appt.Doctor, Start: appt.Start, End: appt.End}
		}
	}
	return nil
}
