package dialog

import "fmt"

// ErrorKind classifies turn-level failures. Each kind maps to a fixed
// user-facing reply; raw detail never reaches the caller.
type ErrorKind string

const (
	// ErrInputUnintelligible: empty or garbled utterance. Reprompt, no
	// state change, no slot mutation.
	ErrInputUnintelligible ErrorKind = "input_unintelligible"
	// ErrExtractionAmbiguous: the extractor returned low-confidence or
	// contradictory data. Ask a targeted clarifying question.
	ErrExtractionAmbiguous ErrorKind = "extraction_ambiguous"
	// ErrSlotConflict: the requested window is taken. Offer alternatives.
	ErrSlotConflict ErrorKind = "slot_conflict"
	// ErrBusinessRule: a product rule blocks the action, e.g. the
	// reschedule cap. Explain and stop the flow.
	ErrBusinessRule ErrorKind = "business_rule_violation"
	// ErrDownstream: an LLM or store call failed. Apologize, keep the
	// session where it was, let the caller retry.
	ErrDownstream ErrorKind = "downstream_unavailable"
)

// TurnError is a classified failure inside a sub-flow. The engine
// converts it into a reply and a state decision at the flow boundary.
type TurnError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dialog: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("dialog: %s: %s", e.Kind, e.Msg)
}

func (e *TurnError) Unwrap() error { return e.Err }

func newTurnError(kind ErrorKind, msg string, err error) *TurnError {
	return &TurnError{Kind: kind, Msg: msg, Err: err}
}
