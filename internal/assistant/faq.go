package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/genai"
	"github.com/BTreeMap/ShopPipe/internal/models"
)

// AnswerThreshold is the confidence at which a matched FAQ is returned verbatim.
const AnswerThreshold = 0.7

const faqPrompt = `You decide whether one of a store's FAQ entries answers a customer's question.

Return ONLY a JSON object, no markdown and no explanation, in this exact format:
{"matched": true, "faqIndex": 1, "confidence": 0.9}

faqIndex is the number of the FAQ in the list below, starting at 1. If no FAQ answers the question, return {"matched": false}.
confidence is between 0 and 1.

FAQs:
%s`

// FAQMatcher picks the FAQ entry, if any, that answers a query.
type FAQMatcher struct {
	client genai.ClientInterface
}

// NewFAQMatcher returns a matcher over client.
func NewFAQMatcher(client genai.ClientInterface) *FAQMatcher {
	return &FAQMatcher{client: client}
}

// Match returns a zero-based FAQIndex on a match. An empty FAQ list makes no
// model call, and any failure yields {matched: false}.
func (m *FAQMatcher) Match(ctx context.Context, query string, faqs []models.FAQ) models.FAQMatch {
	none := models.FAQMatch{Matched: false}
	if len(faqs) == 0 || m == nil || m.client == nil || strings.TrimSpace(query) == "" {
		return none
	}

	var list strings.Builder
	for i, f := range faqs {
		fmt.Fprintf(&list, "%d. Q: %s\n   A: %s\n", i+1, f.Question, f.Answer)
	}
	raw, err := m.client.GeneratePromptWithContext(ctx, fmt.Sprintf(faqPrompt, list.String()), query)
	if err != nil {
		slog.Warn("FAQMatcher.Match: model call failed", "error", err)
		return none
	}
	var out struct {
		Matched    bool    `json:"matched"`
		FAQIndex   *int    `json:"faqIndex"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		slog.Warn("FAQMatcher.Match: unparseable output", "error", err, "raw", raw)
		return none
	}
	if !out.Matched || out.FAQIndex == nil || *out.FAQIndex < 1 || *out.FAQIndex > len(faqs) {
		return none
	}
	idx := *out.FAQIndex - 1
	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return models.FAQMatch{Matched: true, FAQIndex: &idx, Confidence: conf}
}
