package dialog

import (
	"context"
	"strings"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Intent is the classified purpose of an utterance.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentCancel     Intent = "cancel"
	IntentReschedule Intent = "reschedule"
	IntentQuery      Intent = "query"
	IntentSymptom    Intent = "symptom"
	IntentUnknown    Intent = "unknown"
)

// IntentClassifier resolves utterances to intents. A keyword fast path
// answers unambiguous phrasings without a model round-trip; everything
// else goes to the LLM. Failure or timeout yields IntentUnknown, never
// an error.
type IntentClassifier struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewIntentClassifier creates an intent classifier. llm may be nil, in
// which case only the keyword fast path answers.
func NewIntentClassifier(llm LLMClient, model string, timeout time.Duration, logger *logging.Logger) *IntentClassifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &IntentClassifier{
		llm:     llm,
		model:   model,
		timeout: timeout,
		logger:  logger.WithComponent("intent"),
	}
}

// Classify returns the intent for an utterance.
func (c *IntentClassifier) Classify(ctx context.Context, utterance string) Intent {
	if intent, ok := keywordIntent(utterance); ok {
		return intent
	}
	if c.llm == nil {
		return IntentUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{intentSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: utterance}},
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("intent classification failed", "error", err)
		return IntentUnknown
	}
	return parseIntent(resp.Text)
}

func keywordIntent(utterance string) (Intent, bool) {
	lowered := strings.ToLower(utterance)
	switch {
	case strings.Contains(lowered, "cancel"):
		return IntentCancel, true
	case strings.Contains(lowered, "reschedule") || strings.Contains(lowered, "move my appointment"):
		return IntentReschedule, true
	case strings.Contains(lowered, "book") || strings.Contains(lowered, "make an appointment") ||
		strings.Contains(lowered, "schedule an appointment") || strings.Contains(lowered, "see a doctor"):
		return IntentBook, true
	case strings.Contains(lowered, "available") || strings.Contains(lowered, "availability") ||
		strings.Contains(lowered, "my appointment") || strings.Contains(lowered, "my booking") ||
		strings.Contains(lowered, "what times") || strings.Contains(lowered, "opening hours"):
		return IntentQuery, true
	case strings.Contains(lowered, "symptom") || strings.Contains(lowered, "pain") ||
		strings.Contains(lowered, "hurt") || strings.Contains(lowered, "i feel") ||
		strings.Contains(lowered, "fever") || strings.Contains(lowered, "not feeling well"):
		return IntentSymptom, true
	}
	return IntentUnknown, false
}

func parseIntent(text string) Intent {
	token := strings.ToLower(strings.TrimSpace(text))
	token = strings.Trim(token, `"'.`)
	switch Intent(token) {
	case IntentBook, IntentCancel, IntentReschedule, IntentQuery, IntentSymptom:
		return Intent(token)
	}
	// Models occasionally answer in a sentence; look for a bare verb.
	switch {
	case strings.Contains(token, "book"):
		return IntentBook
	case strings.Contains(token, "cancel"):
		return IntentCancel
	case strings.Contains(token, "reschedule"):
		return IntentReschedule
	case strings.Contains(token, "query"):
		return IntentQuery
	case strings.Contains(token, "symptom"):
		return IntentSymptom
	}
	return IntentUnknown
}
