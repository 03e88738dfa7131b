package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType says how a discount amount is applied.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValidDiscountType checks the discount type vocabulary.
func IsValidDiscountType(t DiscountType) bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// Delay bounds, in hours, for each recovery stage.
const (
	MinDelayHours = 1
	MaxDelayHours = 72
)

var (
	ErrInvalidDiscountType   = errors.New("discount_type must be percentage or fixed")
	ErrInvalidDiscountAmount = errors.New("discount_amount must be positive")
	ErrPercentageTooLarge    = errors.New("percentage discount cannot exceed 100")
	ErrMissingStoreID        = errors.New("store_id is required")
)

// DefaultDiscountAmount is used when a store has no automation settings.
var DefaultDiscountAmount = decimal.NewFromInt(10)

// Templates holds the three stage message templates.
type Templates struct {
	Initial  string
	FollowUp string
	Final    string
}

// DefaultTemplates are applied when a store first configures automation.
var DefaultTemplates = Templates{
	Initial: "Hello {{customer_name}},\n\n" +
		"We noticed you left some items in your cart at {{store_name}}:\n\n" +
		"{{cart_items}}\n\n" +
		"Your cart is saved and ready when you are. Complete your purchase here: {{checkout_url}}\n\n" +
		"{{discount_code}}",
	FollowUp: "Hi {{customer_name}},\n\n" +
		"Your cart at {{store_name}} is still waiting for you:\n\n" +
		"{{cart_items}}\n\n" +
		"Popular items sell out quickly. Finish checking out here: {{checkout_url}}\n\n" +
		"{{discount_code}}",
	Final: "Hi {{customer_name}},\n\n" +
		"This is your last reminder from {{store_name}}. These items are still in your cart:\n\n" +
		"{{cart_items}}\n\n" +
		"{{discount_code}}\n\n" +
		"Complete your order before it expires: {{checkout_url}}",
}

// AutomationSettings is the per-store cart recovery configuration.
// Exactly one row exists per store.
type AutomationSettings struct {
	ID                     int64           `json:"id"`
	StoreID                int64           `json:"store_id"`
	IsEnabled              bool            `json:"is_enabled"`
	InitialDelayHours      int             `json:"initial_delay_hours"`
	FollowUpDelayHours     int             `json:"follow_up_delay_hours"`
	FinalDelayHours        int             `json:"final_delay_hours"`
	InitialTemplate        string          `json:"initial_template"`
	FollowUpTemplate       string          `json:"follow_up_template"`
	FinalTemplate          string          `json:"final_template"`
	IncludeDiscountInFinal bool            `json:"include_discount_in_final"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	DiscountType           DiscountType    `json:"discount_type"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// DefaultAutomationSettings returns the settings a store starts with.
func DefaultAutomationSettings(storeID int64) AutomationSettings {
	return AutomationSettings{
		StoreID:                storeID,
		IsEnabled:              false,
		InitialDelayHours:      1,
		FollowUpDelayHours:     24,
		FinalDelayHours:        48,
		InitialTemplate:        DefaultTemplates.Initial,
		FollowUpTemplate:       DefaultTemplates.FollowUp,
		FinalTemplate:          DefaultTemplates.Final,
		IncludeDiscountInFinal: true,
		DiscountAmount:         DefaultDiscountAmount,
		DiscountType:           DiscountTypePercentage,
	}
}

// TemplateFor returns the template configured for a stage.
func (s AutomationSettings) TemplateFor(stage RecoveryStage) string {
	switch stage {
	case StageFollowUp:
		return s.FollowUpTemplate
	case StageFinal:
		return s.FinalTemplate
	default:
		return s.InitialTemplate
	}
}

// AutomationSettingsUpdate is a partial update; nil fields are left unchanged.
// The create payload uses the same shape plus a store id.
type AutomationSettingsUpdate struct {
	IsEnabled              *bool               `json:"is_enabled,omitempty"`
	InitialDelayHours      *int                `json:"initial_delay_hours,omitempty" validate:"omitempty,min=1,max=72"`
	FollowUpDelayHours     *int                `json:"follow_up_delay_hours,omitempty" validate:"omitempty,min=1,max=72"`
	FinalDelayHours        *int                `json:"final_delay_hours,omitempty" validate:"omitempty,min=1,max=72"`
	InitialTemplate        *string             `json:"initial_template,omitempty" validate:"omitempty,max=4096"`
	FollowUpTemplate       *string             `json:"follow_up_template,omitempty" validate:"omitempty,max=4096"`
	FinalTemplate          *string             `json:"final_template,omitempty" validate:"omitempty,max=4096"`
	IncludeDiscountInFinal *bool               `json:"include_discount_in_final,omitempty"`
	DiscountAmount         decimal.NullDecimal `json:"discount_amount"`
	DiscountType           *DiscountType       `json:"discount_type,omitempty"`
}

// Validate checks the delay bounds and discount fields that are present.
func (u *AutomationSettingsUpdate) Validate() error {
	if err := validate.Struct(u); err != nil {
		return err
	}
	if u.DiscountType != nil && !IsValidDiscountType(*u.DiscountType) {
		return ErrInvalidDiscountType
	}
	if u.DiscountAmount.Valid && !u.DiscountAmount.Decimal.IsPositive() {
		return ErrInvalidDiscountAmount
	}
	return nil
}

// Apply copies the set fields onto s.
func (u *AutomationSettingsUpdate) Apply(s *AutomationSettings) {
	if u.IsEnabled != nil {
		s.IsEnabled = *u.IsEnabled
	}
	if u.InitialDelayHours != nil {
		s.InitialDelayHours = *u.InitialDelayHours
	}
	if u.FollowUpDelayHours != nil {
		s.FollowUpDelayHours = *u.FollowUpDelayHours
	}
	if u.FinalDelayHours != nil {
		s.FinalDelayHours = *u.FinalDelayHours
	}
	if u.InitialTemplate != nil {
		s.InitialTemplate = *u.InitialTemplate
	}
	if u.FollowUpTemplate != nil {
		s.FollowUpTemplate = *u.FollowUpTemplate
	}
	if u.FinalTemplate != nil {
		s.FinalTemplate = *u.FinalTemplate
	}
	if u.IncludeDiscountInFinal != nil {
		s.IncludeDiscountInFinal = *u.IncludeDiscountInFinal
	}
	if u.DiscountAmount.Valid {
		s.DiscountAmount = u.DiscountAmount.Decimal
	}
	if u.DiscountType != nil {
		s.DiscountType = *u.DiscountType
	}
}

// Check validates a fully merged settings row.
func (s AutomationSettings) Check() error {
	if s.StoreID <= 0 {
		return ErrMissingStoreID
	}
	if s.DiscountType == DiscountTypePercentage && s.DiscountAmount.GreaterThan(decimal.NewFromInt(100)) {
		return ErrPercentageTooLarge
	}
	return nil
}

// AutomationSettingsCreateRequest is the payload for creating a store's settings.
type AutomationSettingsCreateRequest struct {
	StoreID int64 `json:"store_id" validate:"required,gt=0"`
	AutomationSettingsUpdate
}

// Validate checks the create payload.
func (r *AutomationSettingsCreateRequest) Validate() error {
	if r.StoreID <= 0 {
		return ErrMissingStoreID
	}
	return r.AutomationSettingsUpdate.Validate()
}

// Settings builds the full settings row: defaults overlaid with the payload.
func (r *AutomationSettingsCreateRequest) Settings() AutomationSettings {
	s := DefaultAutomationSettings(r.StoreID)
	r.AutomationSettingsUpdate.Apply(&s)
	return s
}
