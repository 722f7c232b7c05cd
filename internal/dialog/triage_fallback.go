package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/internal/triage"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

const triageSystemPrompt = `You route hospital patients to a department based on their symptoms.
Departments: Cardiology, Orthopedics, Dermatology, Pediatrics, General Medicine, Emergency.
Urgency is one of: emergency, urgent, routine.
Respond with ONLY a JSON object: {"department":"...","urgency":"...","rationale":"..."}.
When unsure, choose General Medicine with routine urgency. Never diagnose.`

// TriageFallback answers symptom text the keyword table cannot match by
// asking the language model. It satisfies triage.Fallback.
type TriageFallback struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewTriageFallback creates the LLM-backed triage fallback. llm may be
// nil, in which case every call reports an error and the mapper falls
// through to its default recommendation.
func NewTriageFallback(llm LLMClient, model string, timeout time.Duration, logger *logging.Logger) *TriageFallback {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &TriageFallback{
		llm:     llm,
		model:   model,
		timeout: timeout,
		logger:  logger.WithComponent("triage_fallback"),
	}
}

var _ triage.Fallback = (*TriageFallback)(nil)

// TriageSymptoms classifies symptom text into a department and urgency.
func (f *TriageFallback) TriageSymptoms(ctx context.Context, symptomText string) (triage.Result, error) {
	if f.llm == nil {
		return triage.Result{}, fmt.Errorf("dialog: triage fallback: no model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.llm.Complete(ctx, LLMRequest{
		Model:       f.model,
		System:      []string{triageSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: symptomText}},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		return triage.Result{}, fmt.Errorf("dialog: triage fallback: %w", err)
	}

	var raw struct {
		Department string `json:"department"`
		Urgency    string `json:"urgency"`
		Rationale  string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &raw); err != nil {
		return triage.Result{}, fmt.Errorf("dialog: triage fallback: unparseable output: %w", err)
	}
	if raw.Department == "" {
		return triage.Result{}, fmt.Errorf("dialog: triage fallback: empty department")
	}

	urgency := triage.Urgency(raw.Urgency)
	switch urgency {
	case triage.UrgencyEmergency, triage.UrgencyUrgent, triage.UrgencyRoutine:
	default:
		urgency = triage.UrgencyRoutine
	}
	return triage.Result{
		Department: raw.Department,
		Urgency:    urgency,
		Rationale:  raw.Rationale,
	}, nil
}
