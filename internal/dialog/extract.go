package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// SlotExtractor pulls slot values out of free text with the LLM and
// normalizes dates and times deterministically afterward. Only concrete
// values survive: placeholders and echoes of "unknown" are dropped.
type SlotExtractor struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewSlotExtractor creates a slot extractor.
func NewSlotExtractor(llm LLMClient, model string, timeout time.Duration, logger *logging.Logger) *SlotExtractor {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &SlotExtractor{
		llm:     llm,
		model:   model,
		timeout: timeout,
		logger:  logger.WithComponent("extract"),
		now:     time.Now,
	}
}

// rawExtraction is the JSON shape the model is asked for.
type rawExtraction struct {
	PatientName string `json:"patient_name"`
	Hospital    string `json:"hospital"`
	Department  string `json:"department"`
	Doctor      string `json:"doctor"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	SymptomText string `json:"symptom_text"`
}

// Extract returns the slots found in the utterance. known is passed to
// the model so it does not re-ask for settled values. Model failure
// returns an empty bag and the error; the engine decides how to degrade.
func (e *SlotExtractor) Extract(ctx context.Context, utterance string, known SlotBag) (SlotBag, error) {
	if e.llm == nil {
		return make(SlotBag), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{extractSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: extractUserPrompt(utterance, known)}},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return make(SlotBag), fmt.Errorf("dialog: slot extraction: %w", err)
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &raw); err != nil {
		e.logger.Warn("unparseable extraction output", "error", err)
		return make(SlotBag), nil
	}
	return e.normalize(raw), nil
}

func (e *SlotExtractor) normalize(raw rawExtraction) SlotBag {
	out := make(SlotBag)
	put := func(name SlotName, value string) {
		if v, ok := concreteValue(value); ok {
			out[name] = SlotValue{Value: v, Provenance: ProvenanceExplicit}
		}
	}
	put(SlotPatientName, raw.PatientName)
	put(SlotHospital, raw.Hospital)
	put(SlotDepartment, raw.Department)
	put(SlotDoctor, raw.Doctor)
	put(SlotSymptomText, raw.SymptomText)

	if v, ok := concreteValue(raw.Date); ok {
		if nd, ok := NormalizeDate(v, e.now()); ok {
			prov := ProvenanceExplicit
			if nd.Inferred {
				prov = ProvenanceInferred
			}
			out[SlotDate] = SlotValue{Value: nd.Day.Format("2006-01-02"), Provenance: prov}
		}
	}
	if v, ok := concreteValue(raw.Time); ok {
		if nt, ok := NormalizeTime(v); ok {
			prov := ProvenanceExplicit
			if nt.Inferred {
				prov = ProvenanceInferred
			}
			out[SlotTime] = SlotValue{
				Value:      fmt.Sprintf("%02d:%02d", nt.Hour, nt.Minute),
				Provenance: prov,
			}
		}
	}
	return out
}

// concreteValue rejects empty strings and the placeholder tokens models
// emit for fields they could not find.
func concreteValue(v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", false
	}
	switch strings.ToLower(trimmed) {
	case "unknown", "null", "none", "n/a", "na", "not provided", "not specified", "tbd", "-":
		return "", false
	}
	if strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") {
		return "", false
	}
	return trimmed, true
}

// stripCodeFence removes a surrounding markdown code fence, which models
// add around JSON despite instructions.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func extractUserPrompt(utterance string, known SlotBag) string {
	var b strings.Builder
	b.WriteString("Known so far:\n")
	for _, name := range SlotOrder {
		if v, ok := known.Get(name); ok {
			fmt.Fprintf(&b, "- %s: %s\n", name, v.Value)
		}
	}
	if v, ok := known.Get(SlotSymptomText); ok {
		fmt.Fprintf(&b, "- %s: %s\n", SlotSymptomText, v.Value)
	}
	b.WriteString("\nUtterance:\n")
	b.WriteString(utterance)
	return b.String()
}
