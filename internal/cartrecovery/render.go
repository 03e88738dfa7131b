// Package cartrecovery implements the abandoned cart recovery engine: message
// rendering, discount codes, the attempt ledger, the stage decision and the
// automation runner that ties them together.
package cartrecovery

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// Template placeholder tokens. Matching is exact and case-sensitive.
const (
	TokenCustomerName = "{{customer_name}}"
	TokenStoreName    = "{{store_name}}"
	TokenCartItems    = "{{cart_items}}"
	TokenCheckoutURL  = "{{checkout_url}}"
	TokenDiscountCode = "{{discount_code}}"
)

const (
	fallbackCustomerName = "Customer"
	fallbackStoreName    = "Store"
	emptyCartText        = "no items"
)

// Discount is an offer attached to a rendered message.
type Discount struct {
	Code   string
	Amount decimal.Decimal
	Type   models.DiscountType
}

// Sentence renders the customer-facing discount line.
func (d Discount) Sentence() string {
	if d.Type == models.DiscountTypeFixed {
		return fmt.Sprintf("Use discount code %s for $%s off your order!", d.Code, FormatPrice(d.Amount))
	}
	return fmt.Sprintf("Use discount code %s for %s%% off your order!", d.Code, d.Amount.String())
}

// RenderParams are the values substituted into a template besides the cart.
// A nil Discount removes the discount placeholder.
type RenderParams struct {
	CustomerName string
	StoreName    string
	Discount     *Discount
}

// Render fills every placeholder token in tmpl. An empty customer name falls
// back to the cart's name and then to "Customer"; an empty store name to "Store".
func Render(tmpl string, cart models.AbandonedCart, p RenderParams) string {
	name := firstNonEmpty(p.CustomerName, cart.CustomerName, fallbackCustomerName)
	storeName := firstNonEmpty(p.StoreName, fallbackStoreName)
	discount := ""
	if p.Discount != nil && p.Discount.Code != "" {
		discount = p.Discount.Sentence()
	}
	r := strings.NewReplacer(
		TokenCustomerName, name,
		TokenStoreName, storeName,
		TokenCartItems, FormatItems(cart.CartItems),
		TokenCheckoutURL, cart.CheckoutURL,
		TokenDiscountCode, discount,
	)
	return strings.TrimSpace(r.Replace(tmpl))
}

// FormatItems renders one "{quantity}x {title} - {price}" line per item.
func FormatItems(items models.CartItems) string {
	if len(items) == 0 {
		return emptyCartText
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%dx %s - %s", item.Quantity, item.Title, FormatPrice(item.Price)))
	}
	return strings.Join(lines, "\n")
}

// FormatPrice renders an amount with two decimals.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
