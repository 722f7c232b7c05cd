package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, logging.New("error"), WithClock(func() time.Time { return now }))
	return svc, store
}

func TestFindSlotsExcludesBookedAndPast(t *testing.T) {
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	// Mid-morning: the 09:00 and 09:30 windows are already gone.
	svc, store := newTestService(t, day.Add(9*time.Hour+45*time.Minute))

	_, err := store.Book(context.Background(), bookReq("Dr. Mehta", day.Add(10*time.Hour)))
	require.NoError(t, err)

	open, err := svc.FindSlots(context.Background(), "Dr. Mehta", day)
	require.NoError(t, err)

	// 12 template windows, minus 2 past, minus 1 booked.
	require.Len(t, open, 9)
	assert.Equal(t, day.Add(10*time.Hour+30*time.Minute), open[0].Start)
	for _, w := range open {
		assert.NotEqual(t, day.Add(10*time.Hour), w.Start)
	}
}

func TestFindSlotsOtherDoctorUnaffected(t *testing.T) {
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, day)

	_, err := store.Book(context.Background(), bookReq("Dr. Mehta", day.Add(10*time.Hour)))
	require.NoError(t, err)

	open, err := svc.FindSlots(context.Background(), "Dr. Okafor", day)
	require.NoError(t, err)
	assert.Len(t, open, 12)
}

func TestIsAvailable(t *testing.T) {
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, day)

	start := day.Add(10 * time.Hour)
	_, err := store.Book(context.Background(), bookReq("Dr. Mehta", start))
	require.NoError(t, err)

	ok, conflict, err := svc.IsAvailable(context.Background(), "Dr. Mehta", start, start.Add(SlotDuration))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, conflict)
	assert.Equal(t, start, conflict.Start)

	ok, conflict, err = svc.IsAvailable(context.Background(), "Dr. Mehta", start.Add(SlotDuration), start.Add(2*SlotDuration))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, conflict)
}

func TestBookRefusesWindowOutsideClinicHours(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, day)

	for _, start := range []time.Time{
		day.Add(24*time.Hour + 3*time.Hour),  // 03:00, before opening
		day.Add(24*time.Hour + 13*time.Hour), // 13:00, lunch break
		day.Add(24*time.Hour + 17*time.Hour), // 17:00, after closing
	} {
		_, err := svc.Book(context.Background(), bookReq("Dr. Mehta", start))
		assert.ErrorIs(t, err, ErrOutsideHours, "start %v", start)
	}

	appts, err := store.ListUpcoming(context.Background(), "+15550001111", day)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestBookRefusesPastWindow(t *testing.T) {
	now := time.Date(2026, 9, 14, 10, 15, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.Book(context.Background(), bookReq("Dr. Mehta", time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.ErrorIs(t, err, ErrPastWindow)

	// Same morning but already started.
	_, err = svc.Book(context.Background(), bookReq("Dr. Mehta", now.Add(-15*time.Minute)))
	assert.ErrorIs(t, err, ErrPastWindow)
}

func TestRescheduleRefusesInvalidWindow(t *testing.T) {
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, day)

	res, err := store.Book(context.Background(), bookReq("Dr. Mehta", day.Add(10*time.Hour)))
	require.NoError(t, err)
	ref := res.Appointment.BookingRef

	past := day.Add(-24 * time.Hour).Add(10 * time.Hour)
	_, err = svc.Reschedule(context.Background(), ref, past, past.Add(SlotDuration), 2)
	assert.ErrorIs(t, err, ErrPastWindow)

	night := day.Add(24*time.Hour + 22*time.Hour)
	_, err = svc.Reschedule(context.Background(), ref, night, night.Add(SlotDuration), 2)
	assert.ErrorIs(t, err, ErrOutsideHours)

	appt, err := store.GetByRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, day.Add(10*time.Hour), appt.Start)
	assert.Equal(t, 0, appt.RescheduleCount)
}

func TestNewServiceRequiresStore(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, logging.New("error")) })
}
