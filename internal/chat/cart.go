package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/models"
)

// resolveEmail returns the first email found in: the conversation, the
// classifier slots, message metadata (newest first), the linked profile.
func (s *Service) resolveEmail(t *turn) string {
	if e := strings.TrimSpace(t.conv.CustomerEmail); e != "" {
		return e
	}
	if t.intent.CustomerEmail != "" {
		return t.intent.CustomerEmail
	}
	for i := len(t.history) - 1; i >= 0; i-- {
		if e := t.history[i].MetadataEmail(); e != "" {
			return e
		}
	}
	if t.conv.ProfileID != nil {
		p, err := s.store.GetCustomerProfile(*t.conv.ProfileID)
		if err != nil {
			slog.Warn("Service.resolveEmail: failed to load profile", "error", err, "profile_id", *t.conv.ProfileID)
			return ""
		}
		if p != nil {
			return strings.TrimSpace(p.Email)
		}
	}
	return ""
}

// resolveCart answers a cart question. handled is false when the customer has
// no saved cart and the general responder should take over.
func (s *Service) resolveCart(ctx context.Context, t *turn) (content string, handled bool, err error) {
	email := strings.ToLower(s.resolveEmail(t))
	if email == "" {
		return askEmailReply, true, nil
	}
	if t.conv.CustomerEmail == "" {
		if err := s.store.SetConversationEmail(t.conv.ID, email); err != nil {
			slog.Warn("Service.resolveCart: failed to persist email", "error", err, "conversation_id", t.conv.ID)
		} else {
			t.conv.CustomerEmail = email
		}
	}

	carts, err := s.store.ListCartsByEmail(t.conv.StoreID, email)
	if err != nil {
		return "", false, fmt.Errorf("list carts by email: %w", err)
	}
	if len(carts) == 0 {
		slog.Debug("Service.resolveCart: no carts for email", "conversation_id", t.conv.ID)
		return "", false, nil
	}
	cart := carts[0]

	if !t.intent.CompletePurchase {
		return cartrecovery.Summarize(cart), true, nil
	}

	name := firstNonEmpty(t.conv.CustomerName, cart.CustomerName)
	built, err := s.builder.Build(cart, models.StageFinal, name, true)
	if err != nil {
		return "", false, fmt.Errorf("build recovery message: %w", err)
	}
	convID, msgID := t.conv.ID, t.userMsg.ID
	attempt, err := s.ledger.Record(cart.ID, cartrecovery.RecordInput{
		MessageContent: built.Message,
		DiscountCode:   built.DiscountCode,
		DiscountAmount: built.DiscountAmount,
		ConversationID: &convID,
		MessageID:      &msgID,
	})
	if err != nil {
		return "", false, fmt.Errorf("record conversational attempt: %w", err)
	}
	if attempt != nil {
		slog.Info("Service.resolveCart: conversational recovery recorded", "attempt_id", attempt.ID, "cart_id", cart.ID, "conversation_id", convID)
	}
	return built.Message, true, nil
}
