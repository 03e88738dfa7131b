package cartrecovery

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// Summarize renders the conversational cart summary shown in chat when the
// customer asks about their cart but has not asked to check out.
func Summarize(cart models.AbandonedCart) string {
	var b strings.Builder
	count := 0
	for _, item := range cart.CartItems {
		count += item.Quantity
	}
	noun := "items"
	if count == 1 {
		noun = "item"
	}
	fmt.Fprintf(&b, "I found your saved cart with %d %s:\n", count, noun)
	for _, item := range cart.CartItems {
		fmt.Fprintf(&b, "- %dx %s at $%s each = $%s\n", item.Quantity, item.Title,
			FormatPrice(item.Price), FormatPrice(item.Subtotal()))
	}
	fmt.Fprintf(&b, "Total: $%s\n", FormatPrice(CartTotal(cart)))
	if cart.CheckoutURL != "" {
		fmt.Fprintf(&b, "You can complete your checkout here: %s\n", cart.CheckoutURL)
	}
	b.WriteString("Would you like to complete your purchase?")
	return b.String()
}

// CartTotal prefers the stored total and falls back to the item sum.
func CartTotal(cart models.AbandonedCart) decimal.Decimal {
	if cart.TotalPrice.Valid {
		return cart.TotalPrice.Decimal
	}
	return cart.CartItems.Total()
}
