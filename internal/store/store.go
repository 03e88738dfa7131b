// Package store provides storage backends for ShopPipe.
//
// It includes an in-memory arena store and SQL-backed stores (SQLite and
// PostgreSQL) sharing one implementation.
package store

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

var (
	// ErrSettingsExist is returned when a store already has automation settings.
	ErrSettingsExist = errors.New("automation settings already exist for store")
	// ErrStoreNotFound is returned when a write references a missing store.
	ErrStoreNotFound = errors.New("store not found")
	// ErrCartNotFound is returned when an attempt references a missing cart.
	ErrCartNotFound = errors.New("cart not found")
	// ErrConversationNotFound is returned when a message references a missing conversation.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store is the persistence surface used by the automation runner, the chat
// pipeline and the API. Getters return (nil, nil) when the row does not exist.
type Store interface {
	CreateStore(s models.Store) (models.Store, error)
	GetStore(id int64) (*models.Store, error)
	ListStores() ([]models.Store, error)

	GetChatSettings(storeID int64) (*models.ChatSettings, error)
	SaveChatSettings(cs models.ChatSettings) (models.ChatSettings, error)

	CreateAutomationSettings(as models.AutomationSettings) (models.AutomationSettings, error)
	GetAutomationSettings(storeID int64) (*models.AutomationSettings, error)
	GetAutomationSettingsByID(id int64) (*models.AutomationSettings, error)
	// UpdateAutomationSettings replaces the row with as.ID; nil when missing.
	UpdateAutomationSettings(as models.AutomationSettings) (*models.AutomationSettings, error)
	ListEnabledAutomationSettings() ([]models.AutomationSettings, error)

	// UpsertCart inserts or updates the cart keyed by (StoreID, ExternalCheckoutID).
	// A zero AbandonedAt means now on insert and keeps the stored time on update.
	UpsertCart(c models.AbandonedCart) (models.AbandonedCart, error)
	GetCart(id int64) (*models.AbandonedCart, error)
	// ListCarts returns a store's carts, most recently abandoned first.
	ListCarts(storeID int64) ([]models.AbandonedCart, error)
	// ListRecoverableCarts returns carts with a customer email whose abandoned_at
	// or updated_at is at or after since.
	ListRecoverableCarts(storeID int64, since time.Time) ([]models.AbandonedCart, error)
	// ListCartsByEmail returns the store's carts for email, most recent first.
	ListCartsByEmail(storeID int64, email string) ([]models.AbandonedCart, error)

	CreateRecoveryAttempt(a models.RecoveryAttempt) (models.RecoveryAttempt, error)
	GetRecoveryAttempt(id int64) (*models.RecoveryAttempt, error)
	// UpdateRecoveryAttempt persists the status and converted_at of a.
	UpdateRecoveryAttempt(a models.RecoveryAttempt) error
	// ListRecoveryAttemptsByCart returns attempts in creation order.
	ListRecoveryAttemptsByCart(cartID int64) ([]models.RecoveryAttempt, error)
	// ListRecoveryAttemptsByStore returns matching attempts, newest first.
	ListRecoveryAttemptsByStore(storeID int64, filter models.AttemptFilter) ([]models.RecoveryAttempt, error)

	// UpsertCustomerProfile inserts or updates the profile keyed by
	// (StoreID, Identifier). Empty email/name never overwrite stored values.
	UpsertCustomerProfile(p models.CustomerProfile) (models.CustomerProfile, error)
	GetCustomerProfile(id int64) (*models.CustomerProfile, error)

	CreateConversation(c models.Conversation) (models.Conversation, error)
	GetConversation(id int64) (*models.Conversation, error)
	SetConversationEmail(id int64, email string) error
	AddMessage(m models.Message) (models.Message, error)
	// ListMessages returns a conversation's messages in creation order.
	ListMessages(conversationID int64) ([]models.Message, error)

	CreateFAQ(f models.FAQ) (models.FAQ, error)
	ListFAQs(storeID int64) ([]models.FAQ, error)
	DeleteFAQ(id int64) (bool, error)

	OutboxRepo
	DedupRepo

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN     string
	Backend string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Backend = "sqlite"
	}
}

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Backend = "postgres"
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Open builds the store selected by opts. Without a DSN it falls back to the
// in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Info("Store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	case cfg.Backend == "postgres" || (cfg.Backend == "" && DetectDSNType(cfg.DSN) == "postgres"):
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	default:
		return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
	}
}

// normalizeEmail is the canonical form emails are stored and matched in.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
