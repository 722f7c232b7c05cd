// Package triage maps free-text symptom descriptions to a hospital
// department and urgency tier. The primary path is a deterministic
// keyword table; a language-model fallback is consulted only when the
// table has no match. Triage output is advice, never a diagnosis.
package triage

import (
	"context"
	"strings"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Urgency tiers, most severe first.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
)

// Result is one department recommendation. Derived per turn, never stored.
type Result struct {
	Department string
	Urgency    Urgency
	Rationale  string
}

type keywordRule struct {
	keyword    string
	department string
	urgency    Urgency
	rationale  string
}

// Table order is significant: the first matching rule is the primary
// recommendation. Emergency rules sit on top so a severe phrasing is
// never shadowed by its milder substring further down.
var keywordTable = []keywordRule{
	{"severe chest pain", "Cardiology", UrgencyEmergency, "Severe chest pain needs immediate emergency care"},
	{"difficulty breathing", "Cardiology", UrgencyEmergency, "Breathing difficulty needs immediate emergency care"},
	{"unconscious", "Emergency", UrgencyEmergency, "Loss of consciousness needs immediate emergency care"},
	{"severe bleeding", "Emergency", UrgencyEmergency, "Severe bleeding needs immediate emergency care"},
	{"chest pain", "Cardiology", UrgencyUrgent, "Chest pain may indicate heart problems"},
	{"heart", "Cardiology", UrgencyUrgent, "Heart-related symptoms require cardiac evaluation"},
	{"shortness of breath", "Cardiology", UrgencyUrgent, "Breathing difficulties may indicate cardiac or pulmonary issues"},
	{"fracture", "Orthopedics", UrgencyUrgent, "Fractures need prompt orthopedic attention"},
	{"fever", "General Medicine", UrgencyRoutine, "Fever is a common symptom requiring general medical evaluation"},
	{"headache", "General Medicine", UrgencyRoutine, "Headaches are typically handled by general medicine"},
	{"skin", "Dermatology", UrgencyRoutine, "Skin conditions are treated by dermatology"},
	{"rash", "Dermatology", UrgencyRoutine, "Skin rashes require dermatological evaluation"},
	{"bone", "Orthopedics", UrgencyRoutine, "Bone-related issues are handled by orthopedics"},
	{"joint", "Orthopedics", UrgencyRoutine, "Joint problems require orthopedic evaluation"},
	{"child", "Pediatrics", UrgencyRoutine, "Children's health issues are handled by pediatrics"},
	{"baby", "Pediatrics", UrgencyRoutine, "Infant health concerns require pediatric care"},
}

// DefaultResult is returned when nothing matches and no fallback answers.
var DefaultResult = Result{
	Department: "General Medicine",
	Urgency:    UrgencyRoutine,
	Rationale:  "Start with General Medicine for an initial evaluation; they can refer you to a specialist if needed",
}

// Fallback classifies symptom text the keyword table cannot match.
type Fallback interface {
	TriageSymptoms(ctx context.Context, symptomText string) (Result, error)
}

// Mapper resolves symptom text to department recommendations.
type Mapper struct {
	fallback Fallback
	logger   *logging.Logger
}

// NewMapper creates a triage mapper. fallback may be nil; the keyword
// table then covers everything and unmatched text gets DefaultResult.
func NewMapper(fallback Fallback, logger *logging.Logger) *Mapper {
	return &Mapper{
		fallback: fallback,
		logger:   logger.WithComponent("triage"),
	}
}

// Map returns every matching recommendation in table order; the first
// element is the primary recommendation. The slice is never empty.
func (m *Mapper) Map(ctx context.Context, symptomText string) []Result {
	lowered := strings.ToLower(symptomText)

	var results []Result
	for _, rule := range keywordTable {
		if strings.Contains(lowered, rule.keyword) {
			results = append(results, Result{
				Department: rule.department,
				Urgency:    rule.urgency,
				Rationale:  rule.rationale,
			})
		}
	}
	if len(results) > 0 {
		return results
	}

	if m.fallback != nil {
		res, err := m.fallback.TriageSymptoms(ctx, symptomText)
		if err == nil && res.Department != "" {
			return []Result{res}
		}
		if err != nil {
			m.logger.Warn("triage fallback failed", "error", err)
		}
	}
	return []Result{DefaultResult}
}
