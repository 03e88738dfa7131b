// Package messaging hands recovery notifications from the automation runner
// to delivery channels.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// KindRecoveryAttempt is the outbox kind used for recovery notifications.
const KindRecoveryAttempt = "recovery_attempt"

// Notification is the intent to deliver one recovery attempt to a customer.
type Notification struct {
	AttemptID    int64                `json:"attempt_id"`
	CartID       int64                `json:"cart_id"`
	StoreID      int64                `json:"store_id"`
	Stage        models.RecoveryStage `json:"stage"`
	Email        string               `json:"email"`
	Phone        string               `json:"phone,omitempty"`
	CustomerName string               `json:"customer_name,omitempty"`
	Body         string               `json:"body"`
}

// Notifier accepts notifications. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs the intent to send.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	slog.Info("LogNotifier.Notify: recovery message ready",
		"attempt_id", n.AttemptID, "cart_id", n.CartID, "store_id", n.StoreID,
		"stage", n.Stage, "recipient", n.Email, "length", len(n.Body))
	return nil
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// ErrInvalidPhone is returned for phone numbers with too few digits.
var ErrInvalidPhone = errors.New("invalid phone number")

// CanonicalizePhone strips everything but digits and returns the number in
// "+<digits>" form.
func CanonicalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	canonical := phoneNumberRegex.ReplaceAllString(phone, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", ErrInvalidPhone, phone)
	}
	return "+" + canonical, nil
}
