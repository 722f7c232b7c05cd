package dialog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/internal/observability/metrics"
	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/internal/triage"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Notifier delivers out-of-band confirmations. The engine calls it
// fire-and-forget: delivery failure is logged and never blocks or fails
// a conversation turn.
type Notifier interface {
	BookingConfirmed(ctx context.Context, phone string, appt scheduling.Appointment) error
	BookingCancelled(ctx context.Context, phone string, appt scheduling.Appointment) error
	EscalateEmergency(ctx context.Context, callerID, symptomText, department string) error
}

var bookingRefRE = regexp.MustCompile(`(?i)\bAPPT-([A-Z0-9]{8})\b`)

// genericComplaintRE matches utterances that announce illness without
// naming any symptom.
var genericComplaintRE = regexp.MustCompile(`(?i)^\W*(i\s*(?:'m|am)?\s*(?:really\s+)?(?:not\s+)?feel(?:ing)?\s+(?:well|good|great|sick|ill|unwell|bad|terrible|awful)|i\s*(?:'m|am)\s+(?:sick|ill|unwell)|i\s+(?:have|think i have)\s+(?:some\s+)?symptoms?|not\s+feeling\s+(?:well|good|great))[\s.!,]*$`)

func describesSymptoms(text string) bool {
	return !genericComplaintRE.MatchString(strings.TrimSpace(text))
}

// Engine owns the dialog state machine. One HandleTurn call runs at a
// time per caller; different callers proceed in parallel.
type Engine struct {
	sessions   SessionStore
	scheduler  *scheduling.Service
	triager    *triage.Mapper
	classifier *IntentClassifier
	extractor  *SlotExtractor

	notifier    Notifier
	metrics     *metrics.DialogMetrics
	transcripts TranscriptSink
	logger      *logging.Logger

	maxReschedules int
	locks          sync.Map // callerID -> *sync.Mutex
	now            func() time.Time
	location       *time.Location
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithNotifier attaches an out-of-band notifier.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics attaches dialog metrics.
func WithMetrics(m *metrics.DialogMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTranscripts attaches a durable transcript sink. Recording is
// fire-and-forget like notifications.
func WithTranscripts(ts TranscriptSink) EngineOption {
	return func(e *Engine) { e.transcripts = ts }
}

// WithMaxReschedules overrides the per-appointment reschedule cap.
func WithMaxReschedules(n int) EngineOption {
	return func(e *Engine) { e.maxReschedules = n }
}

// WithClock overrides the engine clock, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
		e.extractor.now = now
	}
}

// NewEngine creates a dialog engine.
func NewEngine(
	sessions SessionStore,
	scheduler *scheduling.Service,
	triager *triage.Mapper,
	classifier *IntentClassifier,
	extractor *SlotExtractor,
	logger *logging.Logger,
	opts ...EngineOption,
) *Engine {
	if sessions == nil {
		panic("dialog: session store is required")
	}
	if scheduler == nil {
		panic("dialog: scheduling service is required")
	}
	if triager == nil {
		panic("dialog: triage mapper is required")
	}
	if classifier == nil || extractor == nil {
		panic("dialog: classifier and extractor are required")
	}
	e := &Engine{
		sessions:       sessions,
		scheduler:      scheduler,
		triager:        triager,
		classifier:     classifier,
		extractor:      extractor,
		logger:         logger.WithComponent("dialog"),
		maxReschedules: 2,
		now:            time.Now,
		location:       time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn processes one inbound utterance for a caller and returns
// the reply text. It is the single transport-agnostic entry point; SMS,
// voice, webchat, and REST all funnel through here.
func (e *Engine) HandleTurn(ctx context.Context, callerID, utterance string) (string, error) {
	if strings.TrimSpace(callerID) == "" {
		return "", errors.New("dialog: caller id is required")
	}

	// Serialize turns per caller so slot merges and state transitions
	// never interleave for the same conversation.
	muAny, _ := e.locks.LoadOrStore(callerID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	session, err := e.sessions.Get(ctx, callerID)
	if errors.Is(err, ErrSessionNotFound) {
		session = NewSession(callerID, e.now())
	} else if err != nil {
		e.logger.Error("session load failed", "caller_id", callerID, "error", err)
		return replyApology, nil
	}

	trimmed := strings.TrimSpace(utterance)
	if !intelligible(trimmed) {
		// Fixed reprompt; no state change, no slot mutation.
		if session.State == StateGreeting {
			return replyGreeting, nil
		}
		return replyReprompt, nil
	}

	session.Append(ChatRoleUser, trimmed, e.now())

	// A finished conversation reopens on the next utterance.
	if session.State == StateDone {
		session.State = StateIdentifyIntent
	}

	stable := session.State
	reply := e.dispatch(ctx, session, trimmed)

	// Error handling happens at the flow boundary inside dispatch; by
	// this point reply is always user-facing text. Make sure a failed
	// sub-flow never leaves the session mid-commit.
	if session.State == StateCommitting {
		session.State = stable
	}

	session.Append(ChatRoleAssistant, reply, e.now())
	if err := e.sessions.Save(ctx, session); err != nil {
		e.logger.Error("session save failed", "caller_id", callerID, "state", session.State, "error", err)
	}
	e.recordTranscript(callerID, trimmed, reply)
	return reply, nil
}

// recordTranscript writes the exchanged pair to the durable transcript
// store without blocking the turn.
func (e *Engine) recordTranscript(callerID, utterance, reply string) {
	if e.transcripts == nil {
		return
	}
	at := e.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.transcripts.RecordTurn(ctx, callerID, ChatRoleUser, utterance, at); err != nil {
			e.logger.Warn("transcript record failed", "caller_id", callerID, "error", err)
			return
		}
		if err := e.transcripts.RecordTurn(ctx, callerID, ChatRoleAssistant, reply, at); err != nil {
			e.logger.Warn("transcript record failed", "caller_id", callerID, "error", err)
		}
	}()
}

// dispatch routes the utterance to a sub-flow and converts sub-flow
// errors into user-facing replies with a state rollback.
func (e *Engine) dispatch(ctx context.Context, session *Session, utterance string) string {
	stable := session.State
	if stable == StateClarifying && session.ResumeState != "" {
		stable = session.ResumeState
	}
	intent := e.resolveIntent(ctx, session, utterance)

	reply, err := e.runFlow(ctx, session, intent, utterance)
	if err == nil {
		session.ResumeState = ""
		e.metrics.ObserveTurn(string(intent), "ok")
		return reply
	}

	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		turnErr = newTurnError(ErrDownstream, "unclassified failure", err)
	}
	if turnErr.Kind != ErrInputUnintelligible {
		e.logger.Error("turn failed",
			"caller_id", session.CallerID,
			"state", stable,
			"kind", turnErr.Kind,
			"error", turnErr,
		)
	}
	e.metrics.ObserveTurn(string(intent), string(turnErr.Kind))

	// Roll back to the last stable collecting state; the caller can
	// retry on the next turn. An ambiguous extraction parks the session
	// in CLARIFYING until the caller restates the detail.
	switch {
	case turnErr.Kind == ErrExtractionAmbiguous && stable.Collecting():
		session.State = StateClarifying
		session.ResumeState = stable
	case stable.Collecting():
		session.State = stable
		session.ResumeState = ""
	default:
		session.State = StateIdentifyIntent
		session.ResumeState = ""
	}

	switch turnErr.Kind {
	case ErrInputUnintelligible:
		return replyReprompt
	case ErrExtractionAmbiguous:
		if turnErr.Msg != "" {
			return turnErr.Msg
		}
		return replyReprompt
	case ErrBusinessRule:
		session.State = StateDone
		if turnErr.Msg != "" {
			return turnErr.Msg
		}
		return replyApology
	default:
		return replyApology
	}
}

// resolveIntent applies the existing-flow-precedence rule: a session
// already collecting for a flow stays in that flow unless the caller
// explicitly asks to cancel or reschedule.
func (e *Engine) resolveIntent(ctx context.Context, session *Session, utterance string) Intent {
	state := session.State
	if state == StateClarifying {
		state = session.ResumeState
	}
	if state.Collecting() {
		if override, ok := keywordIntent(utterance); ok &&
			(override == IntentCancel || override == IntentReschedule) &&
			override != flowIntent(state) {
			e.resetFlow(session)
			return override
		}
		return flowIntent(state)
	}
	return e.classifier.Classify(ctx, utterance)
}

func flowIntent(state State) Intent {
	switch state {
	case StateCollectingBookingSlots:
		return IntentBook
	case StateCollectingCancelTarget:
		return IntentCancel
	case StateCollectingRescheduleTarget:
		return IntentReschedule
	case StateAnsweringQuery:
		return IntentQuery
	case StateTriaging:
		return IntentSymptom
	}
	return IntentUnknown
}

// resetFlow clears flow-local scratch when the caller switches flows.
func (e *Engine) resetFlow(session *Session) {
	session.PendingSlot = ""
	session.TargetRef = ""
	session.ResumeState = ""
	delete(session.Slots, SlotDate)
	delete(session.Slots, SlotTime)
}

func (e *Engine) runFlow(ctx context.Context, session *Session, intent Intent, utterance string) (string, error) {
	switch intent {
	case IntentBook:
		return e.handleBooking(ctx, session, utterance)
	case IntentCancel:
		return e.handleCancel(ctx, session, utterance)
	case IntentReschedule:
		return e.handleReschedule(ctx, session, utterance)
	case IntentQuery:
		return e.handleQuery(ctx, session, utterance)
	case IntentSymptom:
		return e.handleTriage(ctx, session, utterance)
	default:
		if session.State == StateGreeting {
			session.State = StateIdentifyIntent
			return replyGreeting, nil
		}
		session.State = StateIdentifyIntent
		return replyUnknownIntent, nil
	}
}

// --- booking -------------------------------------------------------------

func (e *Engine) handleBooking(ctx context.Context, session *Session, utterance string) (string, error) {
	if err := e.collectSlots(ctx, session, utterance); err != nil {
		return "", err
	}

	if next := session.Slots.NextMissing(); next != "" {
		session.State = StateCollectingBookingSlots
		session.PendingSlot = next
		return promptForSlot(next), nil
	}
	session.PendingSlot = ""
	return e.commitBooking(ctx, session)
}

// collectSlots runs extraction and merges the result. When the previous
// turn asked for a specific slot and extraction finds nothing for it, a
// short bare answer binds directly to that slot.
func (e *Engine) collectSlots(ctx context.Context, session *Session, utterance string) error {
	extracted, err := e.extractor.Extract(ctx, utterance, session.Slots)
	if err != nil {
		return newTurnError(ErrDownstream, "slot extraction failed", err)
	}

	if session.PendingSlot != "" {
		if _, found := extracted[session.PendingSlot]; !found {
			if v, ok := e.bindBareAnswer(session.PendingSlot, utterance); ok {
				extracted[session.PendingSlot] = v
			}
		}
	}

	// Opportunistic capture so "tomorrow at 3" fills date and time in
	// one turn even when the model misses one of them.
	for _, name := range []SlotName{SlotDate, SlotTime} {
		if _, set := session.Slots[name]; set {
			continue
		}
		if _, found := extracted[name]; found {
			continue
		}
		if v, ok := e.bindDateTime(name, utterance); ok {
			extracted[name] = v
		}
	}

	session.Slots.Merge(extracted)
	return nil
}

// bindDateTime parses only date/time expressions out of free text.
// Booking references are stripped first so their digits are never
// mistaken for a clock time.
func (e *Engine) bindDateTime(slot SlotName, utterance string) (SlotValue, bool) {
	switch slot {
	case SlotDate, SlotTime:
		return e.bindBareAnswer(slot, bookingRefRE.ReplaceAllString(utterance, ""))
	}
	return SlotValue{}, false
}

func (e *Engine) bindBareAnswer(slot SlotName, utterance string) (SlotValue, bool) {
	switch slot {
	case SlotDate:
		if nd, ok := NormalizeDate(utterance, e.now()); ok {
			prov := ProvenanceExplicit
			if nd.Inferred {
				prov = ProvenanceInferred
			}
			return SlotValue{Value: nd.Day.Format("2006-01-02"), Provenance: prov}, true
		}
	case SlotTime:
		if nt, ok := NormalizeTime(utterance); ok {
			prov := ProvenanceExplicit
			if nt.Inferred {
				prov = ProvenanceInferred
			}
			return SlotValue{Value: fmt.Sprintf("%02d:%02d", nt.Hour, nt.Minute), Provenance: prov}, true
		}
	default:
		trimmed := strings.TrimSpace(utterance)
		if trimmed != "" && len(trimmed) <= 80 && !strings.Contains(trimmed, "?") {
			return SlotValue{Value: trimmed, Provenance: ProvenanceExplicit}, true
		}
	}
	return SlotValue{}, false
}

func (e *Engine) commitBooking(ctx context.Context, session *Session) (string, error) {
	// Idempotence: the same fully-collected slot set commits once.
	fp := session.Slots.Fingerprint()
	if session.CommittedRef != "" && session.CommittedFingerprint == fp {
		session.State = StateDone
		return session.LastConfirmation, nil
	}

	start, err := e.slotInstant(session.Slots)
	if err != nil {
		delete(session.Slots, SlotDate)
		delete(session.Slots, SlotTime)
		session.State = StateCollectingBookingSlots
		session.PendingSlot = SlotDate
		return "", newTurnError(ErrExtractionAmbiguous, "I couldn't make out that date and time. "+promptForSlot(SlotDate), err)
	}
	end := start.Add(scheduling.SlotDuration)

	session.State = StateCommitting
	res, err := e.scheduler.Book(ctx, scheduling.BookRequest{
		PatientName:  session.Slots.Value(SlotPatientName),
		PatientPhone: session.CallerID,
		Hospital:     session.Slots.Value(SlotHospital),
		Department:   session.Slots.Value(SlotDepartment),
		Doctor:       session.Slots.Value(SlotDoctor),
		Start:        start,
		End:          end,
	})
	if errors.Is(err, scheduling.ErrOutsideHours) {
		delete(session.Slots, SlotTime)
		session.State = StateCollectingBookingSlots
		session.PendingSlot = SlotTime
		return "", newTurnError(ErrExtractionAmbiguous, replyOutsideHours, err)
	}
	if errors.Is(err, scheduling.ErrPastWindow) {
		delete(session.Slots, SlotDate)
		delete(session.Slots, SlotTime)
		session.State = StateCollectingBookingSlots
		session.PendingSlot = SlotDate
		return "", newTurnError(ErrExtractionAmbiguous, replyPastWindow, err)
	}
	if err != nil {
		return "", newTurnError(ErrDownstream, "booking commit failed", err)
	}

	if res.Conflict != nil {
		e.metrics.ObserveConflict()
		alternatives, altErr := e.scheduler.FindSlots(ctx, session.Slots.Value(SlotDoctor), start)
		if altErr != nil {
			alternatives = nil
		}
		// Drop the contested time and keep collecting.
		delete(session.Slots, SlotTime)
		session.State = StateCollectingBookingSlots
		session.PendingSlot = SlotTime
		return conflictReply(session.Slots.Value(SlotDoctor), alternatives), nil
	}

	appt := res.Appointment
	session.CommittedRef = appt.BookingRef
	session.CommittedFingerprint = fp
	session.LastConfirmation = confirmationReply(appt)
	session.State = StateDone
	e.metrics.ObserveCommit()

	e.notifyAsync(func(nctx context.Context) error {
		return e.notifier.BookingConfirmed(nctx, session.CallerID, *appt)
	})
	return session.LastConfirmation, nil
}

// slotInstant combines the date and time slots into the appointment
// start instant.
func (e *Engine) slotInstant(slots SlotBag) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", slots.Value(SlotDate), e.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("dialog: bad date slot %q: %w", slots.Value(SlotDate), err)
	}
	clock, err := time.Parse("15:04", slots.Value(SlotTime))
	if err != nil {
		return time.Time{}, fmt.Errorf("dialog: bad time slot %q: %w", slots.Value(SlotTime), err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, e.location), nil
}

// --- cancel --------------------------------------------------------------

func (e *Engine) handleCancel(ctx context.Context, session *Session, utterance string) (string, error) {
	ref := findBookingRef(utterance)
	if ref == "" {
		ref = session.TargetRef
	}
	if ref == "" {
		session.State = StateCollectingCancelTarget
		return replyAskCancelTarget, nil
	}
	session.TargetRef = ref

	session.State = StateCommitting
	appt, err := e.scheduler.Cancel(ctx, ref)
	if errors.Is(err, scheduling.ErrNotFound) {
		session.State = StateCollectingCancelTarget
		session.TargetRef = ""
		return replyNotFound, nil
	}
	if err != nil {
		return "", newTurnError(ErrDownstream, "cancel failed", err)
	}

	session.State = StateDone
	session.TargetRef = ""
	e.notifyAsync(func(nctx context.Context) error {
		return e.notifier.BookingCancelled(nctx, session.CallerID, *appt)
	})
	return cancellationReply(appt), nil
}

// --- reschedule ----------------------------------------------------------

func (e *Engine) handleReschedule(ctx context.Context, session *Session, utterance string) (string, error) {
	// Fresh entry into the flow: leftover date/time from an earlier
	// booking must not pass for the new target window.
	if session.State != StateCollectingRescheduleTarget {
		delete(session.Slots, SlotDate)
		delete(session.Slots, SlotTime)
	}
	if ref := findBookingRef(utterance); ref != "" {
		session.TargetRef = ref
	}
	if session.TargetRef == "" {
		session.State = StateCollectingRescheduleTarget
		return replyAskRescheduleTarget, nil
	}

	if err := e.collectSlots(ctx, session, utterance); err != nil {
		return "", err
	}
	if session.Slots.Value(SlotDate) == "" || session.Slots.Value(SlotTime) == "" {
		session.State = StateCollectingRescheduleTarget
		return replyAskRescheduleWhen, nil
	}

	start, err := e.slotInstant(session.Slots)
	if err != nil {
		delete(session.Slots, SlotDate)
		delete(session.Slots, SlotTime)
		session.State = StateCollectingRescheduleTarget
		return "", newTurnError(ErrExtractionAmbiguous, replyAskRescheduleWhen, err)
	}

	session.State = StateCommitting
	res, err := e.scheduler.Reschedule(ctx, session.TargetRef, start, start.Add(scheduling.SlotDuration), e.maxReschedules)
	if errors.Is(err, scheduling.ErrOutsideHours) {
		delete(session.Slots, SlotTime)
		session.State = StateCollectingRescheduleTarget
		return "", newTurnError(ErrExtractionAmbiguous, replyOutsideHours, err)
	}
	if errors.Is(err, scheduling.ErrPastWindow) {
		delete(session.Slots, SlotDate)
		delete(session.Slots, SlotTime)
		session.State = StateCollectingRescheduleTarget
		return "", newTurnError(ErrExtractionAmbiguous, replyPastWindow, err)
	}
	if errors.Is(err, scheduling.ErrRescheduleLimit) {
		return "", newTurnError(ErrBusinessRule, replyRescheduleLimit, err)
	}
	if errors.Is(err, scheduling.ErrNotFound) {
		session.State = StateCollectingRescheduleTarget
		session.TargetRef = ""
		return replyNotFound, nil
	}
	if err != nil {
		return "", newTurnError(ErrDownstream, "reschedule failed", err)
	}

	if res.Conflict != nil {
		e.metrics.ObserveConflict()
		alternatives, altErr := e.scheduler.FindSlots(ctx, res.Conflict.Doctor, start)
		if altErr != nil {
			alternatives = nil
		}
		delete(session.Slots, SlotTime)
		session.State = StateCollectingRescheduleTarget
		return conflictReply(res.Conflict.Doctor, alternatives), nil
	}

	appt := res.Appointment
	session.State = StateDone
	session.TargetRef = ""
	delete(session.Slots, SlotDate)
	delete(session.Slots, SlotTime)
	e.notifyAsync(func(nctx context.Context) error {
		return e.notifier.BookingConfirmed(nctx, session.CallerID, *appt)
	})
	return rescheduleReply(appt), nil
}

// --- query ---------------------------------------------------------------

func (e *Engine) handleQuery(ctx context.Context, session *Session, utterance string) (string, error) {
	lowered := strings.ToLower(utterance)

	// "What do I have booked?"
	if strings.Contains(lowered, "my appointment") || strings.Contains(lowered, "my booking") {
		appts, err := e.scheduler.ListUpcoming(ctx, session.CallerID)
		if err != nil {
			return "", newTurnError(ErrDownstream, "listing appointments failed", err)
		}
		session.State = StateDone
		return upcomingReply(appts), nil
	}

	if err := e.collectSlots(ctx, session, utterance); err != nil {
		return "", err
	}

	doctor := session.Slots.Value(SlotDoctor)
	dateStr := session.Slots.Value(SlotDate)
	if doctor == "" || dateStr == "" {
		session.State = StateAnsweringQuery
		if doctor == "" {
			session.PendingSlot = SlotDoctor
			return "Which doctor would you like to ask about?", nil
		}
		session.PendingSlot = SlotDate
		return "For which date?", nil
	}
	session.PendingSlot = ""

	day, err := time.ParseInLocation("2006-01-02", dateStr, e.location)
	if err != nil {
		delete(session.Slots, SlotDate)
		session.State = StateAnsweringQuery
		return "", newTurnError(ErrExtractionAmbiguous, "Which date did you mean?", err)
	}

	windows, err := e.scheduler.FindSlots(ctx, doctor, day)
	if err != nil {
		return "", newTurnError(ErrDownstream, "availability lookup failed", err)
	}
	session.State = StateDone
	return availabilityReply(doctor, day, windows), nil
}

func upcomingReply(appts []scheduling.Appointment) string {
	if len(appts) == 0 {
		return "You have no upcoming appointments with us."
	}
	lines := make([]string, 0, len(appts))
	for _, a := range appts {
		lines = append(lines, fmt.Sprintf("%s with %s on %s at %s",
			a.BookingRef, a.Doctor,
			a.Start.Format("Monday, January 2"), a.Start.Format("3:04 PM")))
	}
	return "Here's what you have coming up: " + strings.Join(lines, "; ") + "."
}

// --- triage --------------------------------------------------------------

func (e *Engine) handleTriage(ctx context.Context, session *Session, utterance string) (string, error) {
	if err := e.collectSlots(ctx, session, utterance); err != nil {
		return "", err
	}

	symptomText := session.Slots.Value(SlotSymptomText)
	if symptomText == "" {
		// "I'm not feeling well" announces the intent without any
		// symptoms to triage; ask for them before mapping.
		if session.State != StateTriaging && !describesSymptoms(utterance) {
			session.State = StateTriaging
			return replyAskSymptoms, nil
		}
		symptomText = utterance
		session.Slots.Merge(SlotBag{
			SlotSymptomText: {Value: utterance, Provenance: ProvenanceExplicit},
		})
	}

	results := e.triager.Map(ctx, symptomText)
	primary := results[0]

	if primary.Urgency == triage.UrgencyEmergency {
		e.metrics.ObserveEscalation()
		e.notifyAsync(func(nctx context.Context) error {
			return e.notifier.EscalateEmergency(nctx, session.CallerID, symptomText, primary.Department)
		})
		session.State = StateDone
		return replyEmergency, nil
	}

	// Pre-fill the department so a follow-up booking skips straight to
	// the remaining slots. Inferred, so an explicit answer later wins.
	session.Slots.Merge(SlotBag{
		SlotDepartment: {Value: primary.Department, Provenance: ProvenanceInferred},
	})
	session.State = StateIdentifyIntent

	return fmt.Sprintf(
		"%s, so I'd suggest %s (%s). This isn't a medical diagnosis - please consult a doctor. Would you like me to book an appointment with %s?",
		primary.Rationale, primary.Department, primary.Urgency, primary.Department,
	), nil
}

// --- helpers -------------------------------------------------------------

func (e *Engine) notifyAsync(fn func(ctx context.Context) error) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Warn("notification failed", "error", err)
		}
	}()
}

func findBookingRef(text string) string {
	m := bookingRefRE.FindString(text)
	return strings.ToUpper(m)
}

// intelligible rejects empty strings and punctuation-only noise.
func intelligible(text string) bool {
	for _, r := range text {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
	}
	return false
}
