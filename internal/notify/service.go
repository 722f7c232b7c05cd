// Package notify delivers out-of-band confirmations: SMS to patients
// and escalation email to the operator desk. Delivery failures are the
// caller's to log; nothing here ever blocks a conversation.
package notify

import (
	"context"
	"fmt"

	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// SMSSender dispatches a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Service fans dialog events out to SMS and email. Either sender may be
// nil; the corresponding channel is then skipped.
type Service struct {
	sms             SMSSender
	email           EmailSender
	escalationEmail string
	logger          *logging.Logger
}

// NewService creates a notification service.
func NewService(sms SMSSender, email EmailSender, escalationEmail string, logger *logging.Logger) *Service {
	return &Service{
		sms:             sms,
		email:           email,
		escalationEmail: escalationEmail,
		logger:          logger.WithComponent("notify"),
	}
}

// BookingConfirmed texts the patient their booking details.
func (s *Service) BookingConfirmed(ctx context.Context, phone string, appt scheduling.Appointment) error {
	if s.sms == nil {
		return nil
	}
	body := fmt.Sprintf(
		"Meridian Health: your appointment %s with %s (%s) is confirmed for %s at %s.",
		appt.BookingRef, appt.Doctor, appt.Department,
		appt.Start.Format("Mon Jan 2"), appt.Start.Format("3:04 PM"),
	)
	if err := s.sms.SendSMS(ctx, phone, body); err != nil {
		return fmt.Errorf("notify: booking confirmation sms: %w", err)
	}
	s.logger.Info("confirmation sms sent", "booking_ref", appt.BookingRef)
	return nil
}

// BookingCancelled texts the patient that their appointment is gone.
func (s *Service) BookingCancelled(ctx context.Context, phone string, appt scheduling.Appointment) error {
	if s.sms == nil {
		return nil
	}
	body := fmt.Sprintf(
		"Meridian Health: your appointment %s on %s has been cancelled. Reply or call us to rebook.",
		appt.BookingRef, appt.Start.Format("Mon Jan 2"),
	)
	if err := s.sms.SendSMS(ctx, phone, body); err != nil {
		return fmt.Errorf("notify: cancellation sms: %w", err)
	}
	s.logger.Info("cancellation sms sent", "booking_ref", appt.BookingRef)
	return nil
}

// EscalateEmergency emails the operator desk about an emergency-tier
// triage result so a human follows up immediately.
func (s *Service) EscalateEmergency(ctx context.Context, callerID, symptomText, department string) error {
	if s.email == nil || s.escalationEmail == "" {
		s.logger.Warn("emergency escalation dropped: email not configured", "caller_id", callerID)
		return nil
	}
	msg := EmailMessage{
		To:      s.escalationEmail,
		ToName:  "Operator Desk",
		Subject: fmt.Sprintf("EMERGENCY triage escalation (%s)", department),
		Body: fmt.Sprintf(
			"Caller %s described emergency-tier symptoms.\n\nSymptoms: %s\nSuggested department: %s\n\nPlease follow up immediately.",
			callerID, symptomText, department,
		),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: emergency escalation email: %w", err)
	}
	s.logger.Info("emergency escalation sent", "caller_id", callerID, "department", department)
	return nil
}
