package models

// Intent is the classified purpose of an inbound chat message.
type Intent string

const (
	IntentOrderStatus     Intent = "order_status"
	IntentProductInfo     Intent = "product_info"
	IntentAbandonedCart   Intent = "abandoned_cart"
	IntentGeneralQuestion Intent = "general_question"
	IntentSupportRequest  Intent = "support_request"
)

// IsValidIntent checks the closed intent set.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentOrderStatus, IntentProductInfo, IntentAbandonedCart, IntentGeneralQuestion, IntentSupportRequest:
		return true
	default:
		return false
	}
}

// IntentResult is the classifier output: the intent plus extracted slots.
type IntentResult struct {
	Intent           Intent `json:"intent"`
	OrderNumber      string `json:"orderNumber,omitempty"`
	ProductQuery     string `json:"productQuery,omitempty"`
	CustomerEmail    string `json:"customerEmail,omitempty"`
	CompletePurchase bool   `json:"completePurchase,omitempty"`
}

// FAQMatch is the FAQ matcher output. FAQIndex is zero-based.
type FAQMatch struct {
	Matched    bool    `json:"matched"`
	FAQIndex   *int    `json:"faqIndex,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
