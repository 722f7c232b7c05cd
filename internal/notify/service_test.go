package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

type fakeSMS struct {
	to   []string
	body []string
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.body = append(f.body, body)
	return nil
}

type fakeEmail struct {
	sent []EmailMessage
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, msg EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testAppointment() scheduling.Appointment {
	return scheduling.Appointment{
		BookingRef: "APPT-3FA29C41",
		Doctor:     "Dr. Mehta",
		Department: "Cardiology",
		Start:      time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestBookingConfirmedSendsSMS(t *testing.T) {
	sms := &fakeSMS{}
	svc := NewService(sms, nil, "", logging.New("error"))

	err := svc.BookingConfirmed(context.Background(), "+15550001111", testAppointment())
	require.NoError(t, err)
	require.Len(t, sms.to, 1)
	require.Equal(t, "+15550001111", sms.to[0])
	require.Contains(t, sms.body[0], "APPT-3FA29C41")
	require.Contains(t, sms.body[0], "Dr. Mehta")
	require.Contains(t, sms.body[0], "10:00 AM")
}

func TestBookingCancelledSendsSMS(t *testing.T) {
	sms := &fakeSMS{}
	svc := NewService(sms, nil, "", logging.New("error"))

	err := svc.BookingCancelled(context.Background(), "+15550001111", testAppointment())
	require.NoError(t, err)
	require.Len(t, sms.body, 1)
	require.Contains(t, sms.body[0], "cancelled")
}

func TestNilSendersAreSkipped(t *testing.T) {
	svc := NewService(nil, nil, "", logging.New("error"))

	require.NoError(t, svc.BookingConfirmed(context.Background(), "+15550001111", testAppointment()))
	require.NoError(t, svc.EscalateEmergency(context.Background(), "+15550001111", "severe chest pain", "Cardiology"))
}

func TestSMSErrorsAreWrapped(t *testing.T) {
	sms := &fakeSMS{err: errors.New("carrier down")}
	svc := NewService(sms, nil, "", logging.New("error"))

	err := svc.BookingConfirmed(context.Background(), "+15550001111", testAppointment())
	require.ErrorContains(t, err, "notify: booking confirmation sms")
}

func TestEscalateEmergencyEmailsOperator(t *testing.T) {
	email := &fakeEmail{}
	svc := NewService(nil, email, "ops@meridianhealth.example", logging.New("error"))

	err := svc.EscalateEmergency(context.Background(), "+15550001111", "severe bleeding", "Emergency")
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	require.Equal(t, "ops@meridianhealth.example", email.sent[0].To)
	require.Contains(t, email.sent[0].Subject, "EMERGENCY")
	require.Contains(t, email.sent[0].Body, "severe bleeding")
	require.Contains(t, email.sent[0].Body, "+15550001111")
}
