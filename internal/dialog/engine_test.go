package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/internal/triage"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

var testNow = time.Date(2026, 9, 13, 8, 0, 0, 0, time.UTC)

type capturedNotification struct {
	kind  string
	phone string
	ref   string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
	done  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 16)}
}

func (n *fakeNotifier) record(kind, phone, ref string) {
	n.mu.Lock()
	n.calls = append(n.calls, capturedNotification{kind: kind, phone: phone, ref: ref})
	n.mu.Unlock()
	n.done <- struct{}{}
}

func (n *fakeNotifier) BookingConfirmed(ctx context.Context, phone string, appt scheduling.Appointment) error {
	n.record("confirmed", phone, appt.BookingRef)
	return nil
}

func (n *fakeNotifier) BookingCancelled(ctx context.Context, phone string, appt scheduling.Appointment) error {
	n.record("cancelled", phone, appt.BookingRef)
	return nil
}

func (n *fakeNotifier) EscalateEmergency(ctx context.Context, callerID, symptomText, department string) error {
	n.record("escalation", callerID, department)
	return nil
}

func (n *fakeNotifier) waitForCall(t *testing.T) capturedNotification {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

// failingStore wraps a Store and fails Book while tripped.
type failingStore struct {
	scheduling.Store
	mu   sync.Mutex
	fail bool
}

func (s *failingStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *failingStore) Book(ctx context.Context, req scheduling.BookRequest) (scheduling.BookResult, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return scheduling.BookResult{}, errors.New("store down")
	}
	return s.Store.Book(ctx, req)
}

type engineFixture struct {
	engine   *Engine
	store    *failingStore
	sessions *MemorySessionStore
	notifier *fakeNotifier
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := logging.New("error")
	store := &failingStore{Store: scheduling.NewMemoryStore()}
	scheduler := scheduling.NewService(store, logger,
		scheduling.WithClock(func() time.Time { return testNow }))
	sessions := NewMemorySessionStore(time.Hour)
	t.Cleanup(sessions.Close)
	notifier := newFakeNotifier()

	engine := NewEngine(
		sessions,
		scheduler,
		triage.NewMapper(nil, logger),
		NewIntentClassifier(nil, "", time.Second, logger),
		NewSlotExtractor(nil, "", time.Second, logger),
		logger,
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }),
	)
	return &engineFixture{engine: engine, store: store, sessions: sessions, notifier: notifier}
}

func (f *engineFixture) turn(t *testing.T, caller, utterance string) string {
	t.Helper()
	reply, err := f.engine.HandleTurn(context.Background(), caller, utterance)
	if err != nil {
		t.Fatalf("HandleTurn(%q) returned error: %v", utterance, err)
	}
	return reply
}

func (f *engineFixture) session(t *testing.T, caller string) *Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), caller)
	if err != nil {
		t.Fatalf("session load failed: %v", err)
	}
	return s
}

// runBookingFlow walks a caller through a complete booking and returns
// the confirmation reply.
func (f *engineFixture) runBookingFlow(t *testing.T, caller string) string {
	t.Helper()
	f.turn(t, caller, "I want to book an appointment")
	f.turn(t, caller, "Alice Johnson")
	f.turn(t, caller, "City Hospital")
	f.turn(t, caller, "Cardiology")
	f.turn(t, caller, "Dr. Mehta")
	f.turn(t, caller, "tomorrow")
	return f.turn(t, caller, "10 am")
}

func TestBookingFlowCollectsSlotsInOrder(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550001111"

	reply := f.turn(t, caller, "I want to book an appointment")
	if reply != promptForSlot(SlotPatientName) {
		t.Fatalf("expected name prompt, got %q", reply)
	}
	if reply := f.turn(t, caller, "Alice Johnson"); reply != promptForSlot(SlotHospital) {
		t.Fatalf("expected hospital prompt, got %q", reply)
	}
	if reply := f.turn(t, caller, "City Hospital"); reply != promptForSlot(SlotDepartment) {
		t.Fatalf("expected department prompt, got %q", reply)
	}
	if reply := f.turn(t, caller, "Cardiology"); reply != promptForSlot(SlotDoctor) {
		t.Fatalf("expected doctor prompt, got %q", reply)
	}
	if reply := f.turn(t, caller, "Dr. Mehta"); reply != promptForSlot(SlotDate) {
		t.Fatalf("expected date prompt, got %q", reply)
	}
	if reply := f.turn(t, caller, "tomorrow"); reply != promptForSlot(SlotTime) {
		t.Fatalf("expected time prompt, got %q", reply)
	}

	confirmation := f.turn(t, caller, "10 am")
	if !strings.Contains(confirmation, "APPT-") {
		t.Fatalf("expected booking reference in confirmation, got %q", confirmation)
	}

	session := f.session(t, caller)
	if session.State != StateDone {
		t.Fatalf("expected DONE, got %s", session.State)
	}
	appt, err := f.store.GetByRef(context.Background(), session.CommittedRef)
	if err != nil {
		t.Fatalf("committed appointment not in store: %v", err)
	}
	want := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
	if !appt.Start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, appt.Start)
	}

	if n := f.notifier.waitForCall(t); n.kind != "confirmed" || n.phone != caller {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestNextMissingSlotIsDepartment(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550002222"

	f.turn(t, caller, "book an appointment")
	f.turn(t, caller, "Alice")
	reply := f.turn(t, caller, "City")

	if reply != promptForSlot(SlotDepartment) {
		t.Fatalf("expected department prompt, got %q", reply)
	}
	if strings.Contains(reply, "name") || strings.Contains(reply, "time of day") {
		t.Fatalf("asked for the wrong slot: %q", reply)
	}
}

func TestUnintelligibleInputRepromptsWithoutStateChange(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550003333"

	f.turn(t, caller, "book an appointment")
	f.turn(t, caller, "Alice Johnson")
	before := f.session(t, caller)

	for _, garbled := range []string{"", "   ", "?!..."} {
		if reply := f.turn(t, caller, garbled); reply != replyReprompt {
			t.Fatalf("expected reprompt for %q, got %q", garbled, reply)
		}
	}

	after := f.session(t, caller)
	if after.State != before.State {
		t.Fatalf("state changed on unintelligible input: %s -> %s", before.State, after.State)
	}
	if len(after.Slots) != len(before.Slots) {
		t.Fatalf("slots mutated on unintelligible input")
	}
}

func TestMidBookingQueryDoesNotDerailFlow(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550004444"

	f.turn(t, caller, "book an appointment")
	f.turn(t, caller, "Alice Johnson")

	// Ambiguous between query and booking; existing flow wins.
	reply := f.turn(t, caller, "what times does Dr. Chen have available?")
	session := f.session(t, caller)
	if session.State != StateCollectingBookingSlots {
		t.Fatalf("flow derailed to %s", session.State)
	}
	if reply != promptForSlot(SlotHospital) {
		t.Fatalf("expected to keep collecting hospital, got %q", reply)
	}
}

func TestExplicitCancelOverridesMidBooking(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550005555"

	confirmation := f.runBookingFlow(t, caller)
	ref := findBookingRef(confirmation)
	if ref == "" {
		t.Fatalf("no booking ref in %q", confirmation)
	}

	reply := f.turn(t, caller, "actually, cancel my appointment "+ref)
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("expected cancellation, got %q", reply)
	}

	appt, err := f.store.GetByRef(context.Background(), ref)
	if err != nil {
		t.Fatalf("appointment lookup failed: %v", err)
	}
	if appt.Status != scheduling.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", appt.Status)
	}
}

func TestReplayAfterDoneDoesNotRebook(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550006666"

	confirmation := f.runBookingFlow(t, caller)

	// Same slot set, new booking request: the commit is idempotent.
	replay := f.turn(t, caller, "book an appointment")
	if replay != confirmation {
		t.Fatalf("replay produced a different confirmation:\n%q\nvs\n%q", replay, confirmation)
	}

	appts, err := f.store.ListUpcoming(context.Background(), caller, testNow)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected exactly one appointment, got %d", len(appts))
	}
}

func TestSlotConflictOffersAlternativesAndRecovers(t *testing.T) {
	f := newEngineFixture(t)

	// Another caller holds tomorrow 10:00 with Dr. Mehta.
	_, err := f.store.Book(context.Background(), scheduling.BookRequest{
		PatientName:  "Bob",
		PatientPhone: "+15550009999",
		Doctor:       "Dr. Mehta",
		Start:        time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}

	caller := "+15550007777"
	reply := f.runBookingFlow(t, caller)
	if !strings.Contains(reply, "already taken") {
		t.Fatalf("expected conflict reply, got %q", reply)
	}

	session := f.session(t, caller)
	if session.State != StateCollectingBookingSlots {
		t.Fatalf("expected to keep collecting after conflict, got %s", session.State)
	}

	confirmation := f.turn(t, caller, "11 am")
	if !strings.Contains(confirmation, "APPT-") {
		t.Fatalf("expected confirmation after retry, got %q", confirmation)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	f := newEngineFixture(t)

	callers := []string{"+15551110001", "+15551110002"}
	for _, c := range callers {
		f.turn(t, c, "book an appointment")
		f.turn(t, c, "Patient "+c)
		f.turn(t, c, "City Hospital")
		f.turn(t, c, "Cardiology")
		f.turn(t, c, "Dr. Mehta")
		f.turn(t, c, "tomorrow")
	}

	var wg sync.WaitGroup
	replies := make([]string, len(callers))
	for i, c := range callers {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			reply, err := f.engine.HandleTurn(context.Background(), c, "10 am")
			if err != nil {
				t.Errorf("HandleTurn failed: %v", err)
				return
			}
			replies[i] = reply
		}(i, c)
	}
	wg.Wait()

	var confirmations, conflicts int
	for _, r := range replies {
		if strings.Contains(r, "APPT-") {
			confirmations++
		}
		if strings.Contains(r, "already taken") {
			conflicts++
		}
	}
	if confirmations != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got replies %q", replies)
	}
}

func TestRescheduleCapRejectedWithoutStatusChange(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550008888"

	confirmation := f.runBookingFlow(t, caller)
	ref := findBookingRef(confirmation)

	// Burn both allowed reschedules directly against the store.
	for i := 0; i < 2; i++ {
		start := time.Date(2026, 9, 15+i, 14, 0, 0, 0, time.UTC)
		res, err := f.store.Reschedule(context.Background(), ref, start, start.Add(scheduling.SlotDuration), 2)
		if err != nil || res.Appointment == nil {
			t.Fatalf("setup reschedule %d failed: %v", i, err)
		}
	}
	before, _ := f.store.GetByRef(context.Background(), ref)

	reply := f.turn(t, caller, "reschedule "+ref+" to friday at 3 pm")
	if !strings.Contains(reply, "rescheduled twice") {
		t.Fatalf("expected reschedule-limit reply, got %q", reply)
	}

	after, _ := f.store.GetByRef(context.Background(), ref)
	if !after.Start.Equal(before.Start) || after.Status != before.Status {
		t.Fatalf("appointment changed despite cap: %+v vs %+v", before, after)
	}
}

func TestRescheduleHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550010101"

	confirmation := f.runBookingFlow(t, caller)
	ref := findBookingRef(confirmation)

	reply := f.turn(t, caller, "please reschedule "+ref)
	if reply != replyAskRescheduleWhen {
		t.Fatalf("expected when prompt, got %q", reply)
	}
	reply = f.turn(t, caller, "tuesday at 3 pm")
	if !strings.Contains(reply, "is now on") {
		t.Fatalf("expected reschedule confirmation, got %q", reply)
	}

	appt, _ := f.store.GetByRef(context.Background(), ref)
	if appt.Status != scheduling.StatusRescheduled || appt.RescheduleCount != 1 {
		t.Fatalf("unexpected appointment state %+v", appt)
	}
	if appt.Start.Hour() != 15 {
		t.Fatalf("expected 15:00 start, got %v", appt.Start)
	}
}

func TestDownstreamFailureRollsBackAndAllowsRetry(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550012121"

	f.turn(t, caller, "book an appointment")
	f.turn(t, caller, "Alice Johnson")
	f.turn(t, caller, "City Hospital")
	f.turn(t, caller, "Cardiology")
	f.turn(t, caller, "Dr. Mehta")
	f.turn(t, caller, "tomorrow")

	f.store.setFail(true)
	reply := f.turn(t, caller, "10 am")
	if reply != replyApology {
		t.Fatalf("expected apology, got %q", reply)
	}
	session := f.session(t, caller)
	if session.State != StateCollectingBookingSlots {
		t.Fatalf("expected rollback to collecting, got %s", session.State)
	}

	f.store.setFail(false)
	confirmation := f.turn(t, caller, "10 am")
	if !strings.Contains(confirmation, "APPT-") {
		t.Fatalf("expected confirmation on retry, got %q", confirmation)
	}
}

func TestSymptomTriagePrefillsDepartment(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550013131"

	reply := f.turn(t, caller, "I've had chest pain since yesterday")
	if !strings.Contains(reply, "Cardiology") {
		t.Fatalf("expected Cardiology suggestion, got %q", reply)
	}

	session := f.session(t, caller)
	dept, ok := session.Slots.Get(SlotDepartment)
	if !ok || dept.Value != "Cardiology" || dept.Provenance != ProvenanceInferred {
		t.Fatalf("expected inferred Cardiology department, got %+v", dept)
	}
}

func TestBookingOutsideClinicHoursReprompts(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550019191"

	f.turn(t, caller, "book an appointment")
	f.turn(t, caller, "Alice Johnson")
	f.turn(t, caller, "City Hospital")
	f.turn(t, caller, "Cardiology")
	f.turn(t, caller, "Dr. Mehta")
	f.turn(t, caller, "tomorrow")

	reply := f.turn(t, caller, "3 am")
	if reply != replyOutsideHours {
		t.Fatalf("expected clinic-hours reprompt, got %q", reply)
	}

	confirmation := f.turn(t, caller, "10 am")
	if !strings.Contains(confirmation, "APPT-") {
		t.Fatalf("expected confirmation after fixing the time, got %q", confirmation)
	}
}

func TestGenericComplaintAsksForSymptoms(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550017171"

	reply := f.turn(t, caller, "I'm not feeling well")
	if reply != replyAskSymptoms {
		t.Fatalf("expected symptom prompt, got %q", reply)
	}
	if s := f.session(t, caller); s.State != StateTriaging {
		t.Fatalf("expected TRIAGING, got %s", s.State)
	}

	reply = f.turn(t, caller, "I have a rash on my arm")
	if !strings.Contains(reply, "Dermatology") {
		t.Fatalf("expected Dermatology suggestion, got %q", reply)
	}
}

func TestAmbiguousDateParksInClarifying(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550018181"

	// A booking-complete session whose date slot never normalized.
	session := NewSession(caller, testNow)
	session.State = StateCollectingBookingSlots
	session.Slots = SlotBag{
		SlotPatientName: {Value: "Alice Johnson", Provenance: ProvenanceExplicit},
		SlotHospital:    {Value: "City Hospital", Provenance: ProvenanceExplicit},
		SlotDepartment:  {Value: "Cardiology", Provenance: ProvenanceExplicit},
		SlotDoctor:      {Value: "Dr. Mehta", Provenance: ProvenanceExplicit},
		SlotDate:        {Value: "someday soon", Provenance: ProvenanceExplicit},
		SlotTime:        {Value: "10:00", Provenance: ProvenanceExplicit},
	}
	if err := f.sessions.Save(context.Background(), session); err != nil {
		t.Fatalf("seed session failed: %v", err)
	}

	reply := f.turn(t, caller, "yes please")
	if !strings.Contains(reply, "date") {
		t.Fatalf("expected a date reprompt, got %q", reply)
	}
	if s := f.session(t, caller); s.State != StateClarifying || s.ResumeState != StateCollectingBookingSlots {
		t.Fatalf("expected CLARIFYING over booking, got state=%s resume=%s", s.State, s.ResumeState)
	}

	f.turn(t, caller, "tomorrow")
	confirmation := f.turn(t, caller, "10 am")
	if !strings.Contains(confirmation, "APPT-") {
		t.Fatalf("expected confirmation after clarification, got %q", confirmation)
	}
	if s := f.session(t, caller); s.ResumeState != "" {
		t.Fatalf("resume state not cleared: %s", s.ResumeState)
	}
}

func TestEmergencySymptomEscalates(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550014141"

	reply := f.turn(t, caller, "severe chest pain and I can barely stand")
	if !strings.Contains(reply, "emergency") {
		t.Fatalf("expected emergency reply, got %q", reply)
	}
	if n := f.notifier.waitForCall(t); n.kind != "escalation" || n.phone != caller {
		t.Fatalf("expected escalation notification, got %+v", n)
	}
}

func TestQueryAvailability(t *testing.T) {
	f := newEngineFixture(t)
	caller := "+15550015151"

	reply := f.turn(t, caller, "can you check my appointments for me?")
	if !strings.Contains(reply, "no upcoming appointments") {
		t.Fatalf("expected empty upcoming list, got %q", reply)
	}
}

func TestGreetingOnFirstContact(t *testing.T) {
	f := newEngineFixture(t)

	reply := f.turn(t, "+15550016161", "hello there")
	if reply != replyGreeting {
		t.Fatalf("expected greeting, got %q", reply)
	}
}
