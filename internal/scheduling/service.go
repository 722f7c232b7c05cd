package scheduling

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Service answers availability questions and commits bookings against a
// Store. It owns no dialog state; callers decide when a booking is ready.
type Service struct {
	store  Store
	logger *logging.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a scheduling service.
func NewService(store Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("scheduling: store is required")
	}
	s := &Service{
		store:  store,
		logger: logger.WithComponent("scheduling"),
		tracer: otel.Tracer("scheduling"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindSlots returns the open windows for a doctor on a given day: the day
// template minus booked appointments, minus anything already in the past.
func (s *Service) FindSlots(ctx context.Context, doctor string, day time.Time) ([]TimeWindow, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.FindSlots",
		trace.WithAttributes(attribute.String("doctor", doctor)))
	defer span.End()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	booked, err := s.store.ListBooked(ctx, doctor, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("scheduling: find slots: %w", err)
	}

	now := s.now()
	var open []TimeWindow
	for _, w := range DayTemplate(doctor, day) {
		if !w.Start.After(now) {
			continue
		}
		if windowTaken(w, booked) {
			continue
		}
		open = append(open, w)
	}
	return open, nil
}

// IsAvailable reports whether a specific window is free for the doctor.
func (s *Service) IsAvailable(ctx context.Context, doctor string, start, end time.Time) (bool, *Conflict, error) {
	booked, err := s.store.ListBooked(ctx, doctor, start, end)
	if err != nil {
		return false, nil, fmt.Errorf("scheduling: check availability: %w", err)
	}
	if len(booked) > 0 {
		w := booked[0]
		return false, &Conflict{Doctor: w.Doctor, Start: w.Start, End: w.End}, nil
	}
	return true, nil, nil
}

// Book commits an appointment. A Conflict result means another booking
// holds the window; it is an outcome, not an error. Windows in the past
// or outside clinic hours are refused before the store is consulted.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.Book",
		trace.WithAttributes(
			attribute.String("doctor", req.Doctor),
			attribute.String("department", req.Department),
		))
	defer span.End()

	if err := s.validateWindow(req.Start, req.End); err != nil {
		return BookResult{}, err
	}

	res, err := s.store.Book(ctx, req)
	if err != nil {
		return BookResult{}, err
	}
	if res.Conflict != nil {
		s.logger.Info("booking conflict",
			"doctor", req.Doctor, "start", req.Start)
		return res, nil
	}
	s.logger.Info("appointment booked",
		"booking_ref", res.Appointment.BookingRef,
		"doctor", res.Appointment.Doctor,
		"start", res.Appointment.Start)
	return res, nil
}

// Cancel marks an appointment cancelled and releases its window.
func (s *Service) Cancel(ctx context.Context, bookingRef string) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.Cancel",
		trace.WithAttributes(attribute.String("booking_ref", bookingRef)))
	defer span.End()

	appt, err := s.store.Cancel(ctx, bookingRef)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled", "booking_ref", bookingRef)
	return appt, nil
}

// Reschedule moves an appointment to a new window, subject to the
// per-appointment reschedule cap.
func (s *Service) Reschedule(ctx context.Context, bookingRef string, newStart, newEnd time.Time, maxReschedules int) (BookResult, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.Reschedule",
		trace.WithAttributes(attribute.String("booking_ref", bookingRef)))
	defer span.End()

	if err := s.validateWindow(newStart, newEnd); err != nil {
		return BookResult{}, err
	}

	res, err := s.store.Reschedule(ctx, bookingRef, newStart, newEnd, maxReschedules)
	if err != nil {
		return BookResult{}, err
	}
	if res.Appointment != nil {
		s.logger.Info("appointment rescheduled",
			"booking_ref", bookingRef, "start", newStart,
			"count", res.Appointment.RescheduleCount)
	}
	return res, nil
}

// GetByRef looks up an appointment by its booking reference.
func (s *Service) GetByRef(ctx context.Context, bookingRef string) (*Appointment, error) {
	return s.store.GetByRef(ctx, bookingRef)
}

// ListUpcoming returns a patient's future appointments ordered by start.
func (s *Service) ListUpcoming(ctx context.Context, patientPhone string) ([]Appointment, error) {
	return s.store.ListUpcoming(ctx, patientPhone, s.now())
}

// validateWindow refuses windows the clinic never offers: malformed or
// past windows and anything outside the day template's blocks.
func (s *Service) validateWindow(start, end time.Time) error {
	if !end.After(start) {
		return ErrOutsideHours
	}
	if !start.After(s.now()) {
		return ErrPastWindow
	}
	if !WithinClinicHours(start, end) {
		return ErrOutsideHours
	}
	return nil
}

func windowTaken(w TimeWindow, booked []TimeWindow) bool {
	for _, b := range booked {
		if Overlaps(w.Start, w.End, b.Start, b.End) {
			return true
		}
	}
	return false
}
