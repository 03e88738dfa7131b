package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BTreeMap/ShopPipe/internal/genai"
	"github.com/BTreeMap/ShopPipe/internal/models"
)

// CartPolicy is the product rule that any cart or checkout mention is an
// abandoned_cart intent. It is stated to the model and enforced again on the
// model's answer.
const CartPolicy = `IMPORTANT: If the customer mentions "my cart", "checkout", "complete my purchase", or any equivalent phrasing about items they added but did not buy, you MUST classify the intent as "abandoned_cart", regardless of any other signals in the message.`

const classifierPrompt = `You classify customer messages sent to an online store's chat assistant.

Return ONLY a JSON object, no markdown and no explanation, in this exact format:
{"intent": "general_question", "orderNumber": "", "productQuery": "", "customerEmail": "", "completePurchase": false}

intent must be one of:
- "order_status": the customer asks where an order is, its status or tracking
- "product_info": the customer asks about products, availability, sizes or prices
- "abandoned_cart": the customer talks about their cart or checkout
- "support_request": the customer needs a human, a refund, a return or has a complaint
- "general_question": anything else

` + CartPolicy + `

Slots:
- orderNumber: the order number if one is mentioned, without a leading '#'
- productQuery: short search terms for product_info
- customerEmail: an email address the customer typed, if any
- completePurchase: true only when the customer says they want to finish or complete the purchase now`

// cartPhrases trigger the abandoned_cart override.
var cartPhrases = []string{
	"my cart",
	"shopping cart",
	"checkout",
	"check out",
	"complete my purchase",
	"complete my order",
	"finish my purchase",
	"finish my order",
	"items i left",
	"left in my cart",
}

// MentionsCart reports whether text contains a cart or checkout phrase.
func MentionsCart(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range cartPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IntentClassifier labels the newest customer message with an intent and slots.
type IntentClassifier struct {
	client genai.ClientInterface
}

// NewIntentClassifier returns a classifier over client. A nil client makes
// every classification fall back to general_question.
func NewIntentClassifier(client genai.ClientInterface) *IntentClassifier {
	return &IntentClassifier{client: client}
}

// Classify never fails: on any model or parsing error it returns
// {intent: general_question}.
func (c *IntentClassifier) Classify(ctx context.Context, history []models.Message) models.IntentResult {
	fallback := models.IntentResult{Intent: models.IntentGeneralQuestion}
	if c == nil || c.client == nil || len(history) == 0 {
		return fallback
	}

	raw, err := c.client.GeneratePromptWithContext(ctx, classifierPrompt, transcript(trimHistory(history, HistoryLimit)))
	if err != nil {
		slog.Warn("IntentClassifier.Classify: model call failed", "error", err)
		return fallback
	}
	var res models.IntentResult
	if err := decodeJSON(raw, &res); err != nil {
		slog.Warn("IntentClassifier.Classify: unparseable output", "error", err, "raw", raw)
		return fallback
	}
	res.Intent = models.Intent(strings.ToLower(strings.TrimSpace(string(res.Intent))))
	if !models.IsValidIntent(res.Intent) {
		slog.Warn("IntentClassifier.Classify: unknown intent", "intent", res.Intent)
		return fallback
	}

	if res.Intent != models.IntentAbandonedCart && MentionsCart(lastUserMessage(history)) {
		slog.Debug("IntentClassifier.Classify: cart policy override", "model_intent", res.Intent)
		res.Intent = models.IntentAbandonedCart
	}
	res.OrderNumber = strings.TrimPrefix(strings.TrimSpace(res.OrderNumber), "#")
	res.ProductQuery = strings.TrimSpace(res.ProductQuery)
	res.CustomerEmail = cleanEmail(res.CustomerEmail)
	return res
}

var validate = validator.New()

// cleanEmail lowercases a well-formed address and drops anything else.
func cleanEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || validate.Var(s, "email") != nil {
		return ""
	}
	return s
}
