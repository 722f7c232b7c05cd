package dialog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// State is the dialog state machine position for one caller.
type State string

const (
	StateGreeting                   State = "GREETING"
	StateIdentifyIntent             State = "IDENTIFY_INTENT"
	StateCollectingBookingSlots     State = "COLLECTING_BOOKING_SLOTS"
	StateCollectingCancelTarget     State = "COLLECTING_CANCEL_TARGET"
	StateCollectingRescheduleTarget State = "COLLECTING_RESCHEDULE_TARGET"
	StateAnsweringQuery             State = "ANSWERING_QUERY"
	StateTriaging                   State = "TRIAGING"
	StateClarifying                 State = "CLARIFYING"
	StateCommitting                 State = "COMMITTING"
	StateDone                       State = "DONE"
)

// Collecting reports whether the state is a stable slot-collecting state
// that error handling may roll back to.
func (s State) Collecting() bool {
	switch s {
	case StateCollectingBookingSlots, StateCollectingCancelTarget,
		StateCollectingRescheduleTarget, StateAnsweringQuery, StateTriaging:
		return true
	}
	return false
}

// SlotName is one entry of the fixed slot vocabulary.
type SlotName string

const (
	SlotPatientName SlotName = "patient_name"
	SlotHospital    SlotName = "hospital"
	SlotDepartment  SlotName = "department"
	SlotDoctor      SlotName = "doctor"
	SlotDate        SlotName = "date"
	SlotTime        SlotName = "time"
	SlotSymptomText SlotName = "symptom_text"
)

// SlotOrder fixes the prompting order for missing booking slots.
var SlotOrder = []SlotName{
	SlotPatientName, SlotHospital, SlotDepartment, SlotDoctor, SlotDate, SlotTime,
}

// Provenance records how a slot value was obtained.
type Provenance string

const (
	ProvenanceExplicit Provenance = "explicit"
	ProvenanceInferred Provenance = "inferred"
)

// SlotValue is a filled slot. An absent map entry means unknown; there
// is no sentinel string for "unset".
type SlotValue struct {
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// SlotBag maps slot names to values. Nil-safe for reads.
type SlotBag map[SlotName]SlotValue

// Get returns the slot value and whether it is set.
func (b SlotBag) Get(name SlotName) (SlotValue, bool) {
	v, ok := b[name]
	return v, ok
}

// Value returns the slot's raw value, or "" when unset.
func (b SlotBag) Value(name SlotName) string {
	return b[name].Value
}

// Merge folds newly extracted slots into the bag. A new value lands only
// when the slot is unset, or when the new value is explicit and the old
// one was merely inferred. A set slot is never cleared.
func (b SlotBag) Merge(extracted SlotBag) {
	for name, nv := range extracted {
		if strings.TrimSpace(nv.Value) == "" {
			continue
		}
		old, ok := b[name]
		if !ok {
			b[name] = nv
			continue
		}
		if nv.Provenance == ProvenanceExplicit && old.Provenance == ProvenanceInferred {
			b[name] = nv
		}
	}
}

// NextMissing returns the first unset booking slot in prompt order, or
// "" when the bag is booking-complete.
func (b SlotBag) NextMissing() SlotName {
	for _, name := range SlotOrder {
		if _, ok := b[name]; !ok {
			return name
		}
	}
	return ""
}

// Fingerprint hashes the booking-relevant slots; identical fingerprints
// identify the same commit for idempotence.
func (b SlotBag) Fingerprint() string {
	h := sha256.New()
	for _, name := range SlotOrder {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(strings.TrimSpace(b.Value(name)))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Clone returns an independent copy of the bag.
func (b SlotBag) Clone() SlotBag {
	out := make(SlotBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Turn is one utterance of recorded conversation history.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the per-caller dialog state. It is owned by the engine and
// mutated only while the caller's turn lock is held.
type Session struct {
	CallerID string  `json:"caller_id"`
	State    State   `json:"state"`
	Slots    SlotBag `json:"slots"`
	History  []Turn  `json:"history"`

	// PendingSlot is the slot the last follow-up question asked for; a
	// bare answer on the next turn binds to it.
	PendingSlot SlotName `json:"pending_slot,omitempty"`

	// TargetRef is the booking reference a cancel/reschedule flow is
	// operating on.
	TargetRef string `json:"target_ref,omitempty"`

	// ResumeState is the collecting state a CLARIFYING detour returns to
	// once the caller restates the ambiguous detail.
	ResumeState State `json:"resume_state,omitempty"`

	// CommittedRef and CommittedFingerprint make booking commits
	// idempotent: replaying the slot set that produced CommittedRef
	// returns the stored confirmation instead of booking again.
	CommittedRef         string `json:"committed_ref,omitempty"`
	CommittedFingerprint string `json:"committed_fingerprint,omitempty"`
	LastConfirmation     string `json:"last_confirmation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh session in the greeting state.
func NewSession(callerID string, now time.Time) *Session {
	return &Session{
		CallerID:  callerID,
		State:     StateGreeting,
		Slots:     make(SlotBag),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append records a turn in the conversation history.
func (s *Session) Append(role, text string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: at})
	s.UpdatedAt = at
}

// RecentHistory returns up to n most recent turns as chat messages for
// model context.
func (s *Session) RecentHistory(n int) []ChatMessage {
	start := 0
	if len(s.History) > n {
		start = len(s.History) - n
	}
	out := make([]ChatMessage, 0, len(s.History)-start)
	for _, t := range s.History[start:] {
		out = append(out, ChatMessage{Role: t.Role, Content: t.Text})
	}
	return out
}
