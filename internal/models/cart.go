package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidCartItems is returned when cart items are neither an array, an
// object, nor a JSON string holding one of those.
var ErrInvalidCartItems = errors.New("cart items must be an array, an object, or a JSON-encoded string")

// ErrInvalidQuantity is returned for a quantity that is not a whole number of
// at least one.
var ErrInvalidQuantity = errors.New("cart item quantity must be a whole number of at least 1")

// CartItem is one line of an abandoned checkout.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Subtotal returns price times quantity.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// UnmarshalJSON tolerates the loose typing of upstream storefront payloads:
// ids, prices and quantities may arrive as numbers or strings, and keys may be
// snake_case or camelCase. A missing quantity means 1.
func (i *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID      json.RawMessage `json:"product_id"`
		ProductIDCamel json.RawMessage `json:"productId"`
		Title          string          `json:"title"`
		Name           string          `json:"name"`
		Price          json.RawMessage `json:"price"`
		Quantity       json.RawMessage `json:"quantity"`
		Image          string          `json:"image"`
		ImageURL       string          `json:"imageUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode cart item: %w", err)
	}

	i.ProductID = rawScalar(raw.ProductID)
	if i.ProductID == "" {
		i.ProductID = rawScalar(raw.ProductIDCamel)
	}
	i.Title = raw.Title
	if i.Title == "" {
		i.Title = raw.Name
	}
	i.Image = raw.Image
	if i.Image == "" {
		i.Image = raw.ImageURL
	}

	i.Price = decimal.Zero
	if p := rawScalar(raw.Price); p != "" {
		if d, err := decimal.NewFromString(p); err == nil {
			i.Price = d
		}
	}

	i.Quantity = 1
	if q := rawScalar(raw.Quantity); q != "" {
		d, err := decimal.NewFromString(q)
		if err != nil || !d.IsInteger() || d.LessThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %q", ErrInvalidQuantity, q)
		}
		i.Quantity = int(d.IntPart())
	}
	return nil
}

// rawScalar renders a JSON string or number as a plain string.
func rawScalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}

// CartItems is the normalized line-item list of a cart. Every decode path
// (JSON bodies, SQL columns, loosely typed Go values) goes through
// parseCartItems, so the rest of the code only ever sees a typed slice.
type CartItems []CartItem

// NormalizeCartItems converts an array, a JSON-encoded string, or a single bare
// object into a CartItems list.
func NormalizeCartItems(v any) (CartItems, error) {
	switch t := v.(type) {
	case nil:
		return CartItems{}, nil
	case CartItems:
		return t, nil
	case []CartItem:
		return CartItems(t), nil
	case CartItem:
		return CartItems{t}, nil
	case *CartItem:
		if t == nil {
			return CartItems{}, nil
		}
		return CartItems{*t}, nil
	case string:
		return parseCartItems([]byte(t))
	case []byte:
		return parseCartItems(t)
	case json.RawMessage:
		return parseCartItems(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode cart items: %w", err)
		}
		return parseCartItems(data)
	}
}

func parseCartItems(data []byte) (CartItems, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return CartItems{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []CartItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode cart items array: %w", err)
		}
		if items == nil {
			items = []CartItem{}
		}
		return CartItems(items), nil
	case '{':
		var item CartItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("decode cart item object: %w", err)
		}
		return CartItems{item}, nil
	case '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("decode cart items string: %w", err)
		}
		inner := bytes.TrimSpace([]byte(encoded))
		if len(inner) > 0 && inner[0] == '"' {
			// A string nested in a string is not a shape any upstream produces.
			return nil, ErrInvalidCartItems
		}
		return parseCartItems(inner)
	default:
		return nil, ErrInvalidCartItems
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CartItems) UnmarshalJSON(data []byte) error {
	items, err := parseCartItems(data)
	if err != nil {
		return err
	}
	*c = items
	return nil
}

// MarshalJSON always renders an array, never null.
func (c CartItems) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]CartItem(c))
}

// Scan implements sql.Scanner for TEXT/JSON columns.
func (c *CartItems) Scan(src any) error {
	var items CartItems
	var err error
	switch t := src.(type) {
	case nil:
		items = CartItems{}
	case []byte:
		items, err = parseCartItems(t)
	case string:
		items, err = parseCartItems([]byte(t))
	default:
		return fmt.Errorf("cannot scan %T into CartItems", src)
	}
	if err != nil {
		return err
	}
	*c = items
	return nil
}

// Value implements driver.Valuer.
func (c CartItems) Value() (driver.Value, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Total sums the subtotals of every line.
func (c CartItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.Subtotal())
	}
	return total
}

// AbandonedCart is one checkout session that was started but never completed.
// (StoreID, ExternalCheckoutID) is unique: re-syncing a checkout updates it.
type AbandonedCart struct {
	ID                 int64               `json:"id"`
	StoreID            int64               `json:"store_id"`
	ExternalCheckoutID string              `json:"external_checkout_id"`
	CustomerEmail      string              `json:"customer_email,omitempty"`
	CustomerName       string              `json:"customer_name,omitempty"`
	CustomerPhone      string              `json:"customer_phone,omitempty"`
	TotalPrice         decimal.NullDecimal `json:"total_price"`
	Currency           string              `json:"currency,omitempty"`
	CartItems          CartItems           `json:"cart_items"`
	CheckoutURL        string              `json:"checkout_url,omitempty"`
	AbandonedAt        time.Time           `json:"abandoned_at"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// CartSyncRequest is the payload for creating or updating an abandoned cart
// from a storefront checkout.
type CartSyncRequest struct {
	ExternalCheckoutID string              `json:"external_checkout_id" validate:"required,max=255"`
	CustomerEmail      string              `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerName       string              `json:"customer_name,omitempty"`
	CustomerPhone      string              `json:"customer_phone,omitempty" validate:"omitempty,e164"`
	TotalPrice         decimal.NullDecimal `json:"total_price"`
	Currency           string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	CartItems          CartItems           `json:"cart_items"`
	CheckoutURL        string              `json:"checkout_url,omitempty" validate:"omitempty,url"`
	AbandonedAt        *time.Time          `json:"abandoned_at,omitempty"`
}

// Validate checks the sync payload.
func (r *CartSyncRequest) Validate() error {
	return validate.Struct(r)
}

// ToCart converts the payload into a cart for the given store. AbandonedAt is
// left zero when the payload omits it, so a re-sync keeps the stored time.
func (r *CartSyncRequest) ToCart(storeID int64) AbandonedCart {
	var abandonedAt time.Time
	if r.AbandonedAt != nil {
		abandonedAt = *r.AbandonedAt
	}
	items := r.CartItems
	if items == nil {
		items = CartItems{}
	}
	return AbandonedCart{
		StoreID:            storeID,
		ExternalCheckoutID: r.ExternalCheckoutID,
		CustomerEmail:      strings.TrimSpace(strings.ToLower(r.CustomerEmail)),
		CustomerName:       r.CustomerName,
		CustomerPhone:      r.CustomerPhone,
		TotalPrice:         r.TotalPrice,
		Currency:           r.Currency,
		CartItems:          items,
		CheckoutURL:        r.CheckoutURL,
		AbandonedAt:        abandonedAt,
	}
}
