package models

import "time"

// Store is a merchant storefront connected to ShopPipe.
type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateStoreRequest is the payload for registering a store.
type CreateStoreRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Domain string `json:"domain" validate:"required,hostname"`
}

// Validate checks the payload.
func (r *CreateStoreRequest) Validate() error {
	return validate.Struct(r)
}

// ChatSettings configures the store's chat widget and its bot persona.
type ChatSettings struct {
	StoreID                      int64     `json:"store_id"`
	BotName                      string    `json:"bot_name"`
	Tone                         string    `json:"tone"`
	ResponseLength               string    `json:"response_length"`
	EnableOrderTracking          bool      `json:"enable_order_tracking"`
	EnableProductRecommendations bool      `json:"enable_product_recommendations"`
	EnableCartRecovery           bool      `json:"enable_cart_recovery"`
	CustomInstructions           string    `json:"custom_instructions,omitempty"`
	WelcomeMessage               string    `json:"welcome_message"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

// DefaultChatSettings returns the settings a store starts with.
func DefaultChatSettings(storeID int64) ChatSettings {
	return ChatSettings{
		StoreID:                      storeID,
		BotName:                      "Shopping Assistant",
		Tone:                         "friendly",
		ResponseLength:               "medium",
		EnableOrderTracking:          true,
		EnableProductRecommendations: true,
		EnableCartRecovery:           true,
		WelcomeMessage:               "Hi there! How can I help you today?",
	}
}

// ChatSettingsRequest is the payload for replacing a store's chat settings.
type ChatSettingsRequest struct {
	BotName                      string `json:"bot_name" validate:"required,max=64"`
	Tone                         string `json:"tone" validate:"required"`
	ResponseLength               string `json:"response_length" validate:"required"`
	EnableOrderTracking          bool   `json:"enable_order_tracking"`
	EnableProductRecommendations bool   `json:"enable_product_recommendations"`
	EnableCartRecovery           bool   `json:"enable_cart_recovery"`
	CustomInstructions           string `json:"custom_instructions,omitempty" validate:"max=2000"`
	WelcomeMessage               string `json:"welcome_message" validate:"max=500"`
}

// Validate checks the payload structure. Tone and length vocabularies are
// checked by the tone package.
func (r *ChatSettingsRequest) Validate() error {
	return validate.Struct(r)
}

// ToSettings converts the payload for the given store.
func (r *ChatSettingsRequest) ToSettings(storeID int64) ChatSettings {
	return ChatSettings{
		StoreID:                      storeID,
		BotName:                      r.BotName,
		Tone:                         r.Tone,
		ResponseLength:               r.ResponseLength,
		EnableOrderTracking:          r.EnableOrderTracking,
		EnableProductRecommendations: r.EnableProductRecommendations,
		EnableCartRecovery:           r.EnableCartRecovery,
		CustomInstructions:           r.CustomInstructions,
		WelcomeMessage:               r.WelcomeMessage,
	}
}

// FAQ is a question/answer pair managed by the store owner.
type FAQ struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FAQRequest is the payload for creating an FAQ entry.
type FAQRequest struct {
	Question string `json:"question" validate:"required,max=500"`
	Answer   string `json:"answer" validate:"required,max=4000"`
	Category string `json:"category,omitempty" validate:"max=64"`
}

// Validate checks the payload.
func (r *FAQRequest) Validate() error {
	return validate.Struct(r)
}
