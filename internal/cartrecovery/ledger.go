package cartrecovery

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// AttemptStore is the persistence the Ledger writes through.
type AttemptStore interface {
	GetCart(id int64) (*models.AbandonedCart, error)
	CreateRecoveryAttempt(a models.RecoveryAttempt) (models.RecoveryAttempt, error)
	GetRecoveryAttempt(id int64) (*models.RecoveryAttempt, error)
	UpdateRecoveryAttempt(a models.RecoveryAttempt) error
	ListRecoveryAttemptsByCart(cartID int64) ([]models.RecoveryAttempt, error)
	ListRecoveryAttemptsByStore(storeID int64, filter models.AttemptFilter) ([]models.RecoveryAttempt, error)
}

// RecordInput describes one attempt to persist.
type RecordInput struct {
	MessageContent string
	DiscountCode   *string
	DiscountAmount decimal.NullDecimal
	ConversationID *int64
	MessageID      *int64
}

// Ledger records recovery attempts and moves them through their lifecycle.
type Ledger struct {
	store AttemptStore
	clock func() time.Time
}

// NewLedger returns a Ledger over s.
func NewLedger(s AttemptStore) *Ledger {
	return &Ledger{store: s, clock: time.Now}
}

// Record persists a new attempt with status sent. It returns (nil, nil) when
// the cart does not exist.
func (l *Ledger) Record(cartID int64, in RecordInput) (*models.RecoveryAttempt, error) {
	cart, err := l.store.GetCart(cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart %d: %w", cartID, err)
	}
	if cart == nil {
		return nil, nil
	}
	a, err := l.store.CreateRecoveryAttempt(models.RecoveryAttempt{
		CartID:         cartID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		MessageContent: in.MessageContent,
		Status:         models.AttemptStatusSent,
		DiscountCode:   in.DiscountCode,
		DiscountAmount: in.DiscountAmount,
		SentAt:         l.clock(),
	})
	if errors.Is(err, store.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record attempt for cart %d: %w", cartID, err)
	}
	slog.Debug("Ledger.Record: attempt recorded", "attempt_id", a.ID, "cart_id", cartID, "has_discount", a.DiscountCode != nil)
	return &a, nil
}

// UpdateStatus moves an attempt forward. It returns (nil, nil) for a missing
// attempt and ErrBackwardTransition for a move to an earlier status. Moving to
// converted stamps ConvertedAt.
func (l *Ledger) UpdateStatus(attemptID int64, status models.AttemptStatus) (*models.RecoveryAttempt, error) {
	if !models.IsValidAttemptStatus(status) {
		return nil, models.ErrInvalidAttemptStatus
	}
	a, err := l.store.GetRecoveryAttempt(attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt %d: %w", attemptID, err)
	}
	if a == nil {
		return nil, nil
	}
	if !models.CanTransition(a.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrBackwardTransition, a.Status, status)
	}
	if a.Status == status {
		return a, nil
	}
	a.Status = status
	if status == models.AttemptStatusConverted {
		now := l.clock()
		a.ConvertedAt = &now
	}
	if err := l.store.UpdateRecoveryAttempt(*a); err != nil {
		return nil, fmt.Errorf("update attempt %d: %w", attemptID, err)
	}
	slog.Info("Ledger.UpdateStatus: attempt status changed", "attempt_id", attemptID, "status", status)
	return a, nil
}

// ListByCart returns a cart's attempts in creation order.
func (l *Ledger) ListByCart(cartID int64) ([]models.RecoveryAttempt, error) {
	return l.store.ListRecoveryAttemptsByCart(cartID)
}

// ListByStore returns a store's attempts newest first, narrowed by filter.
func (l *Ledger) ListByStore(storeID int64, filter models.AttemptFilter) ([]models.RecoveryAttempt, error) {
	return l.store.ListRecoveryAttemptsByStore(storeID, filter)
}
