package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the lifecycle state of a recovery attempt.
type AttemptStatus string

const (
	// AttemptStatusSent is the initial status of every recorded attempt.
	AttemptStatusSent AttemptStatus = "sent"
	// AttemptStatusDelivered means the message reached the customer.
	AttemptStatusDelivered AttemptStatus = "delivered"
	// AttemptStatusClicked means the customer opened the checkout link.
	AttemptStatusClicked AttemptStatus = "clicked"
	// AttemptStatusConverted means the customer completed the purchase.
	AttemptStatusConverted AttemptStatus = "converted"
)

var (
	ErrInvalidAttemptStatus = errors.New("status must be one of sent, delivered, clicked, converted")
	ErrBackwardTransition   = errors.New("recovery attempt status can only move forward")
)

// attemptStatusRank orders statuses: sent < delivered < clicked < converted.
var attemptStatusRank = map[AttemptStatus]int{
	AttemptStatusSent:      0,
	AttemptStatusDelivered: 1,
	AttemptStatusClicked:   2,
	AttemptStatusConverted: 3,
}

// IsValidAttemptStatus checks if the given status belongs to the vocabulary.
func IsValidAttemptStatus(s AttemptStatus) bool {
	_, ok := attemptStatusRank[s]
	return ok
}

// CanTransition reports whether an attempt may move from one status to another.
// Same-status updates are allowed and are no-ops.
func CanTransition(from, to AttemptStatus) bool {
	fromRank, ok := attemptStatusRank[from]
	if !ok {
		return IsValidAttemptStatus(to)
	}
	toRank, ok := attemptStatusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// RecoveryStage is the ordinal position of an attempt within a cart's history.
type RecoveryStage string

const (
	StageNone     RecoveryStage = ""
	StageInitial  RecoveryStage = "initial"
	StageFollowUp RecoveryStage = "follow_up"
	StageFinal    RecoveryStage = "final"
)

// StageForPosition maps a zero-based attempt index to its stage.
func StageForPosition(index int) RecoveryStage {
	switch index {
	case 0:
		return StageInitial
	case 1:
		return StageFollowUp
	case 2:
		return StageFinal
	default:
		return StageNone
	}
}

// RecoveryAttempt is one outbound message sent to win back an abandoned cart.
// Attempts are interpreted positionally in creation order.
type RecoveryAttempt struct {
	ID             int64               `json:"id"`
	CartID         int64               `json:"cart_id"`
	ConversationID *int64              `json:"conversation_id"`
	MessageID      *int64              `json:"message_id"`
	MessageContent string              `json:"message_content"`
	Status         AttemptStatus       `json:"status"`
	DiscountCode   *string             `json:"discount_code"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount"`
	SentAt         time.Time           `json:"sent_at"`
	ConvertedAt    *time.Time          `json:"converted_at"`
	CreatedAt      time.Time           `json:"created_at"`
}

// AttemptFilter narrows a store-wide attempt listing.
type AttemptFilter struct {
	CartID *int64
	Status AttemptStatus
}

// Matches reports whether the attempt passes the filter.
func (f AttemptFilter) Matches(a RecoveryAttempt) bool {
	if f.CartID != nil && a.CartID != *f.CartID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// AttemptStatusUpdate is the payload for moving an attempt along its lifecycle.
type AttemptStatusUpdate struct {
	Status AttemptStatus `json:"status" validate:"required"`
}

// Validate checks the status vocabulary.
func (u *AttemptStatusUpdate) Validate() error {
	if !IsValidAttemptStatus(u.Status) {
		return ErrInvalidAttemptStatus
	}
	return nil
}
