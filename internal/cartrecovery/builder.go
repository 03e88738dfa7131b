package cartrecovery

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// SettingsReader is the read access the Builder needs.
type SettingsReader interface {
	GetStore(id int64) (*models.Store, error)
	GetAutomationSettings(storeID int64) (*models.AutomationSettings, error)
}

// Built is a composed recovery message. DiscountCode is nil and
// DiscountAmount invalid when no discount was included.
type Built struct {
	Message        string
	DiscountCode   *string
	DiscountAmount decimal.NullDecimal
}

// Builder composes recovery messages from a store's automation settings.
type Builder struct {
	settings SettingsReader
	codeGen  func() string
}

// NewBuilder returns a Builder reading settings from r.
func NewBuilder(r SettingsReader) *Builder {
	return &Builder{settings: r, codeGen: GenerateDiscountCode}
}

// Build renders the stage template for cart. Stores without automation
// settings use the default templates and a 10% discount.
func (b *Builder) Build(cart models.AbandonedCart, stage models.RecoveryStage, customerName string, includeDiscount bool) (Built, error) {
	settings, err := b.settings.GetAutomationSettings(cart.StoreID)
	if err != nil {
		return Built{}, fmt.Errorf("load automation settings for store %d: %w", cart.StoreID, err)
	}
	if settings == nil {
		defaults := models.DefaultAutomationSettings(cart.StoreID)
		settings = &defaults
	}
	storeName := ""
	st, err := b.settings.GetStore(cart.StoreID)
	if err != nil {
		return Built{}, fmt.Errorf("load store %d: %w", cart.StoreID, err)
	}
	if st != nil {
		storeName = st.Name
	}

	tmpl := settings.TemplateFor(stage)
	if tmpl == "" {
		tmpl = models.DefaultAutomationSettings(cart.StoreID).TemplateFor(stage)
	}

	params := RenderParams{CustomerName: customerName, StoreName: storeName}
	out := Built{}
	if includeDiscount {
		amount, typ := settings.DiscountAmount, settings.DiscountType
		if !amount.IsPositive() || !models.IsValidDiscountType(typ) {
			amount, typ = models.DefaultDiscountAmount, models.DiscountTypePercentage
		}
		code := b.codeGen()
		params.Discount = &Discount{Code: code, Amount: amount, Type: typ}
		out.DiscountCode = &code
		out.DiscountAmount = decimal.NewNullDecimal(amount)
	}
	out.Message = Render(tmpl, cart, params)
	return out, nil
}
