// Package chat runs the inbound widget conversation: it stores each customer
// message, classifies its intent and routes it to the cart resolver, the
// storefront lookups, the FAQ matcher or the general responder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/assistant"
	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/genai"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/storefront"
)

// ErrDuplicateMessage is returned when a client message id was already handled.
var ErrDuplicateMessage = errors.New("duplicate client message")

// MaxProducts bounds product search results per reply.
const MaxProducts = 5

const (
	askEmailReply       = "I'd be happy to help with your cart! Could you share the email address you used at checkout so I can look it up?"
	askOrderNumberReply = "I can check on that for you. What is your order number?"
)

// Reply is the outcome of one inbound message.
type Reply struct {
	Message  models.Message       `json:"message"`
	Intent   models.Intent        `json:"intent"`
	Products []storefront.Product `json:"products,omitempty"`
}

// Started is the outcome of opening a conversation.
type Started struct {
	Conversation models.Conversation `json:"conversation"`
	Welcome      models.Message      `json:"welcome"`
}

// Opts holds optional Service collaborators.
type Opts struct {
	LLM        genai.ClientInterface
	Storefront storefront.Service
	Builder    *cartrecovery.Builder
	Ledger     *cartrecovery.Ledger
}

// Option configures a Service.
type Option func(*Opts)

// WithLLM sets the model client. Without one every AI step falls back to its
// soft default.
func WithLLM(c genai.ClientInterface) Option {
	return func(o *Opts) {
		o.LLM = c
	}
}

// WithStorefront sets the order/product lookup. Defaults to storefront.Unavailable.
func WithStorefront(s storefront.Service) Option {
	return func(o *Opts) {
		o.Storefront = s
	}
}

// WithRecovery shares the automation runner's builder and ledger.
func WithRecovery(b *cartrecovery.Builder, l *cartrecovery.Ledger) Option {
	return func(o *Opts) {
		o.Builder = b
		o.Ledger = l
	}
}

// Service handles widget conversations.
type Service struct {
	store      store.Store
	classifier *assistant.IntentClassifier
	faqs       *assistant.FAQMatcher
	responder  *assistant.Responder
	storefront storefront.Service
	builder    *cartrecovery.Builder
	ledger     *cartrecovery.Ledger
}

// NewService wires a chat Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	o := Opts{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Storefront == nil {
		o.Storefront = storefront.Unavailable{}
	}
	if o.Builder == nil {
		o.Builder = cartrecovery.NewBuilder(st)
	}
	if o.Ledger == nil {
		o.Ledger = cartrecovery.NewLedger(st)
	}
	return &Service{
		store:      st,
		classifier: assistant.NewIntentClassifier(o.LLM),
		faqs:       assistant.NewFAQMatcher(o.LLM),
		responder:  assistant.NewResponder(o.LLM),
		storefront: o.Storefront,
		builder:    o.Builder,
		ledger:     o.Ledger,
	}
}

// StartConversation records the visitor's profile and opens a conversation
// greeted with the store's welcome message.
func (s *Service) StartConversation(ctx context.Context, req models.StartConversationRequest) (*Started, error) {
	st, err := s.store.GetStore(req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	if st == nil {
		return nil, store.ErrStoreNotFound
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	identifier := firstNonEmpty(email, strings.TrimSpace(req.VisitorID), req.SessionID)
	profile, err := s.store.UpsertCustomerProfile(models.CustomerProfile{
		StoreID:    req.StoreID,
		Identifier: identifier,
		Email:      email,
		Name:       req.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert customer profile: %w", err)
	}

	conv, err := s.store.CreateConversation(models.Conversation{
		StoreID:       req.StoreID,
		SessionID:     req.SessionID,
		ProfileID:     &profile.ID,
		CustomerEmail: email,
		CustomerName:  req.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	settings, err := s.chatSettings(req.StoreID)
	if err != nil {
		return nil, err
	}
	welcome, err := s.store.AddMessage(models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        settings.WelcomeMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("store welcome message: %w", err)
	}
	slog.Info("Service.StartConversation: conversation opened", "conversation_id", conv.ID, "store_id", req.StoreID, "profile_id", profile.ID)
	return &Started{Conversation: conv, Welcome: welcome}, nil
}

// HandleMessage processes one customer message and returns the stored bot
// reply. A repeated client_message_id yields ErrDuplicateMessage.
// A failed message releases its client_message_id so the client can retry.
func (s *Service) HandleMessage(ctx context.Context, conversationID int64, req models.ChatMessageRequest) (_ *Reply, err error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, store.ErrConversationNotFound
	}

	dedupKey := ""
	if clientID := req.ClientMessageID(); clientID != "" {
		dedupKey = fmt.Sprintf("conversation:%d:%s", conv.ID, clientID)
		fresh, recErr := s.store.RecordInbound(dedupKey, fmt.Sprintf("conversation:%d", conv.ID))
		if recErr != nil {
			return nil, fmt.Errorf("record inbound message: %w", recErr)
		}
		if !fresh {
			slog.Info("Service.HandleMessage: duplicate client message", "conversation_id", conv.ID, "client_message_id", clientID)
			return nil, ErrDuplicateMessage
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.store.ReleaseInbound(dedupKey); relErr != nil {
				slog.Warn("Service.HandleMessage: failed to release client message id", "error", relErr, "key", dedupKey)
			}
		}()
	}

	userMsg, err := s.store.AddMessage(models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        strings.TrimSpace(req.Content),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}
	history, err := s.store.ListMessages(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	settings, err := s.chatSettings(conv.StoreID)
	if err != nil {
		return nil, err
	}
	storeName := ""
	if st, err := s.store.GetStore(conv.StoreID); err == nil && st != nil {
		storeName = st.Name
	}

	intent := s.classifier.Classify(ctx, history)
	t := turn{conv: conv, userMsg: userMsg, history: history, settings: settings, storeName: storeName, intent: intent}
	content, products, err := s.route(ctx, &t)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{models.MetaIntent: string(intent.Intent)}
	if len(products) > 0 {
		meta[models.MetaProducts] = products
	}
	botMsg, err := s.store.AddMessage(models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        content,
		Metadata:       meta,
	})
	if err != nil {
		return nil, fmt.Errorf("store bot message: %w", err)
	}
	if dedupKey != "" {
		if err := s.store.MarkProcessed(dedupKey); err != nil {
			slog.Warn("Service.HandleMessage: failed to mark message processed", "error", err, "key", dedupKey)
		}
	}
	slog.Debug("Service.HandleMessage: replied", "conversation_id", conv.ID, "intent", intent.Intent, "products", len(products))
	return &Reply{Message: botMsg, Intent: intent.Intent, Products: products}, nil
}

// turn carries the state of one inbound message through routing.
type turn struct {
	conv      *models.Conversation
	userMsg   models.Message
	history   []models.Message
	settings  models.ChatSettings
	storeName string
	intent    models.IntentResult
}

func (s *Service) route(ctx context.Context, t *turn) (string, []storefront.Product, error) {
	switch {
	case t.intent.Intent == models.IntentAbandonedCart && t.settings.EnableCartRecovery:
		content, handled, err := s.resolveCart(ctx, t)
		if err != nil {
			return "", nil, err
		}
		if handled {
			return content, nil, nil
		}
		return s.reply(ctx, t, ""), nil, nil

	case t.intent.Intent == models.IntentOrderStatus && t.settings.EnableOrderTracking:
		return s.orderStatus(ctx, t), nil, nil

	case t.intent.Intent == models.IntentProductInfo && t.settings.EnableProductRecommendations:
		return s.productInfo(ctx, t)
	}
	return s.answer(ctx, t), nil, nil
}

// answer tries the store's FAQs, then the general responder.
func (s *Service) answer(ctx context.Context, t *turn) string {
	faqs, err := s.store.ListFAQs(t.conv.StoreID)
	if err != nil {
		slog.Warn("Service.answer: failed to load FAQs", "error", err, "store_id", t.conv.StoreID)
	}
	match := s.faqs.Match(ctx, t.userMsg.Content, faqs)
	if match.Matched && match.FAQIndex != nil && match.Confidence >= assistant.AnswerThreshold {
		return faqs[*match.FAQIndex].Answer
	}
	return s.reply(ctx, t, "")
}

func (s *Service) reply(ctx context.Context, t *turn, extra string) string {
	return s.responder.Reply(ctx, assistant.ReplyRequest{
		StoreName: t.storeName,
		Settings:  t.settings,
		History:   t.history,
		Context:   extra,
	})
}

func (s *Service) orderStatus(ctx context.Context, t *turn) string {
	number := t.intent.OrderNumber
	if number == "" {
		return askOrderNumberReply
	}
	order, err := s.storefront.LookupOrder(ctx, t.conv.StoreID, number)
	if err != nil {
		slog.Warn("Service.orderStatus: lookup failed", "error", err, "store_id", t.conv.StoreID, "order", number)
		return s.reply(ctx, t, "Order lookup is unavailable right now. Apologize and suggest contacting the store directly.")
	}
	if order == nil {
		return fmt.Sprintf("I couldn't find an order with number #%s. Could you double-check the number?", storefront.NormalizeOrderNumber(number))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s is currently %s.", storefront.NormalizeOrderNumber(order.Number), order.Status)
	if !order.Total.IsZero() {
		fmt.Fprintf(&b, " Order total: $%s.", cartrecovery.FormatPrice(order.Total))
	}
	if order.TrackingURL != "" {
		fmt.Fprintf(&b, " You can track it here: %s", order.TrackingURL)
	}
	return b.String()
}

func (s *Service) productInfo(ctx context.Context, t *turn) (string, []storefront.Product, error) {
	query := firstNonEmpty(t.intent.ProductQuery, t.userMsg.Content)
	products, err := s.storefront.SearchProducts(ctx, t.conv.StoreID, query, MaxProducts)
	if err != nil {
		slog.Warn("Service.productInfo: search failed", "error", err, "store_id", t.conv.StoreID)
		return s.reply(ctx, t, "Product search is unavailable right now."), nil, nil
	}
	var b strings.Builder
	if len(products) == 0 {
		fmt.Fprintf(&b, "No products matched %q.", query)
	} else {
		b.WriteString("Matching products:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s: $%s", p.Title, cartrecovery.FormatPrice(p.Price))
			if p.URL != "" {
				fmt.Fprintf(&b, " (%s)", p.URL)
			}
			b.WriteString("\n")
		}
	}
	return s.reply(ctx, t, b.String()), products, nil
}

func (s *Service) chatSettings(storeID int64) (models.ChatSettings, error) {
	cs, err := s.store.GetChatSettings(storeID)
	if err != nil {
		return models.ChatSettings{}, fmt.Errorf("load chat settings: %w", err)
	}
	if cs == nil {
		return models.DefaultChatSettings(storeID), nil
	}
	return *cs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
