package models

import (
	"errors"
	"strings"
	"time"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Metadata keys written on bot messages and read from client messages.
const (
	MetaIntent     = "intent"
	MetaProducts   = "products"
	MetaCustomData = "customData"
	MetaEmail      = "email"
	MetaClientID   = "client_message_id"
)

// CustomerProfile is the durable identity of a store visitor. Identifier is an
// email or an anonymous visitor id and is unique per store.
type CustomerProfile struct {
	ID         int64     `json:"id"`
	StoreID    int64     `json:"store_id"`
	Identifier string    `json:"identifier"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Conversation is one chat session between a visitor and the store's bot.
type Conversation struct {
	ID            int64     `json:"id"`
	StoreID       int64     `json:"store_id"`
	SessionID     string    `json:"session_id"`
	ProfileID     *int64    `json:"profile_id,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is a single entry of a conversation transcript. Metadata is a
// free-form bag: client messages may carry customData.email, bot messages
// carry the classified intent and any returned products.
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Role           MessageRole    `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MetadataEmail returns a client-supplied email from customData.email or a
// top-level email key, if present.
func (m Message) MetadataEmail() string {
	if m.Metadata == nil {
		return ""
	}
	for _, key := range []string{MetaCustomData, "custom_data"} {
		if custom, ok := m.Metadata[key].(map[string]any); ok {
			if email, ok := custom[MetaEmail].(string); ok && strings.TrimSpace(email) != "" {
				return strings.TrimSpace(email)
			}
		}
	}
	if email, ok := m.Metadata[MetaEmail].(string); ok {
		return strings.TrimSpace(email)
	}
	return ""
}

var ErrEmptyMessage = errors.New("message content cannot be empty")

// MaxChatMessageLength bounds inbound widget messages.
const MaxChatMessageLength = 4000

// StartConversationRequest is the widget payload for opening a chat.
type StartConversationRequest struct {
	StoreID   int64  `json:"store_id" validate:"required,gt=0"`
	SessionID string `json:"session_id" validate:"required,max=128"`
	VisitorID string `json:"visitor_id,omitempty" validate:"omitempty,max=128"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Name      string `json:"name,omitempty" validate:"omitempty,max=255"`
}

// Validate checks the payload.
func (r *StartConversationRequest) Validate() error {
	return validate.Struct(r)
}

// ChatMessageRequest is the widget payload for one inbound message.
type ChatMessageRequest struct {
	Content  string         `json:"content" validate:"required,max=4000"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the payload.
func (r *ChatMessageRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyMessage
	}
	return validate.Struct(r)
}

// ClientMessageID returns the widget-generated idempotency id, if any.
func (r *ChatMessageRequest) ClientMessageID() string {
	if r.Metadata == nil {
		return ""
	}
	id, _ := r.Metadata[MetaClientID].(string)
	return strings.TrimSpace(id)
}
