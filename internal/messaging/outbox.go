package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/twiliowhatsapp"
)

// OutboxNotifier persists notifications to the outbox; an OutboxSender
// delivers them in the background.
type OutboxNotifier struct {
	repo store.OutboxRepo
}

// NewOutboxNotifier creates a notifier over repo.
func NewOutboxNotifier(repo store.OutboxRepo) *OutboxNotifier {
	return &OutboxNotifier{repo: repo}
}

// Notify implements Notifier. The attempt id is the dedupe key, so a
// notification is queued at most once per attempt.
func (o *OutboxNotifier) Notify(ctx context.Context, n Notification) error {
	recipient := n.Email
	if n.Phone != "" {
		if phone, err := CanonicalizePhone(n.Phone); err == nil {
			n.Phone = phone
			recipient = phone
		} else {
			slog.Warn("OutboxNotifier.Notify: ignoring invalid phone", "attempt_id", n.AttemptID, "error", err)
			n.Phone = ""
		}
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	dedupeKey := KindRecoveryAttempt + ":" + strconv.FormatInt(n.AttemptID, 10)
	id, err := o.repo.EnqueueOutboxMessage(recipient, KindRecoveryAttempt, string(payload), dedupeKey)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	slog.Info("OutboxNotifier.Notify: recovery message queued",
		"outbox_id", id, "attempt_id", n.AttemptID, "cart_id", n.CartID, "stage", n.Stage, "recipient", recipient)
	return nil
}

// NewDeliveryFunc returns the OutboxSender callback. Notifications with a
// phone number go out through sms when it is configured; everything else is
// logged as delivered, since no email transport is wired.
func NewDeliveryFunc(sms twiliowhatsapp.Sender) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		if msg.Kind != KindRecoveryAttempt {
			slog.Warn("Delivery: unknown outbox kind, dropping", "id", msg.ID, "kind", msg.Kind)
			return nil
		}
		var n Notification
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &n); err != nil {
			return fmt.Errorf("decode notification %s: %w", msg.ID, err)
		}
		if n.Phone != "" && sms != nil {
			if err := sms.SendMessage(ctx, n.Phone, n.Body); err != nil {
				return err
			}
			slog.Info("Delivery: recovery message sent via Twilio", "attempt_id", n.AttemptID, "to", n.Phone)
			return nil
		}
		return LogNotifier{}.Notify(ctx, n)
	}
}
