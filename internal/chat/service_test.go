package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/assistant"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/storefront"
)

// scriptedLLM answers classification and FAQ prompts from queues and
// free-form replies with a fixed string.
type scriptedLLM struct {
	intents    []string
	faq        string
	reply      string
	replyCalls int
	lastSystem string
}

func (s *scriptedLLM) GeneratePromptWithContext(_ context.Context, system, _ string) (string, error) {
	if strings.Contains(system, "FAQ") {
		if s.faq == "" {
			return `{"matched":false}`, nil
		}
		return s.faq, nil
	}
	if len(s.intents) == 0 {
		return "", errors.New("no scripted intent")
	}
	out := s.intents[0]
	if len(s.intents) > 1 {
		s.intents = s.intents[1:]
	}
	return out, nil
}

func (s *scriptedLLM) GenerateWithMessages(_ context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	s.replyCalls++
	if len(messages) > 0 && messages[0].OfSystem != nil {
		s.lastSystem = messages[0].OfSystem.Content.OfString.Value
	}
	return s.reply, nil
}

type env struct {
	st      *store.InMemoryStore
	storeID int64
	llm     *scriptedLLM
	catalog *storefront.Catalog
	svc     *Service
}

func newEnv(t *testing.T, intents ...string) *env {
	t.Helper()
	e := &env{
		st:      store.NewInMemoryStore(),
		llm:     &scriptedLLM{intents: intents, reply: "general reply"},
		catalog: storefront.NewCatalog(),
	}
	s, err := e.st.CreateStore(models.Store{Name: "Demo Store", Domain: "demo.example.com"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	e.storeID = s.ID
	e.svc = NewService(e.st, WithLLM(e.llm), WithStorefront(e.catalog))
	return e
}

func (e *env) start(t *testing.T, req models.StartConversationRequest) models.Conversation {
	t.Helper()
	req.StoreID = e.storeID
	if req.SessionID == "" {
		req.SessionID = "sess-1"
	}
	started, err := e.svc.StartConversation(context.Background(), req)
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	return started.Conversation
}

func (e *env) send(t *testing.T, convID int64, content string, meta map[string]any) *Reply {
	t.Helper()
	r, err := e.svc.HandleMessage(context.Background(), convID, models.ChatMessageRequest{Content: content, Metadata: meta})
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", content, err)
	}
	return r
}

func (e *env) addCart(t *testing.T, email string, abandonedAt time.Time) models.AbandonedCart {
	t.Helper()
	c, err := e.st.UpsertCart(models.AbandonedCart{
		StoreID:            e.storeID,
		ExternalCheckoutID: "chk-" + email + abandonedAt.Format("150405"),
		CustomerEmail:      email,
		CustomerName:       "Ana",
		CartItems: models.CartItems{
			{Title: "Blue T-Shirt", Price: decimal.RequireFromString("29.99"), Quantity: 2},
		},
		CheckoutURL: "https://demo.example.com/c/1",
		AbandonedAt: abandonedAt,
	})
	if err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}
	return c
}

func TestStartConversation(t *testing.T) {
	e := newEnv(t)
	started, err := e.svc.StartConversation(context.Background(), models.StartConversationRequest{
		StoreID: e.storeID, SessionID: "s1", Email: " Ann@Example.com ", Name: "Ann",
	})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if started.Conversation.CustomerEmail != "ann@example.com" || started.Conversation.ProfileID == nil {
		t.Errorf("conversation = %+v", started.Conversation)
	}
	if started.Welcome.Content != models.DefaultChatSettings(e.storeID).WelcomeMessage {
		t.Errorf("welcome = %q", started.Welcome.Content)
	}
	profile, _ := e.st.GetCustomerProfile(*started.Conversation.ProfileID)
	if profile == nil || profile.Identifier != "ann@example.com" {
		t.Errorf("profile = %+v", profile)
	}

	_, err = e.svc.StartConversation(context.Background(), models.StartConversationRequest{StoreID: 999, SessionID: "s"})
	if !errors.Is(err, store.ErrStoreNotFound) {
		t.Errorf("missing store err = %v", err)
	}
}

func TestCart_EmailFromMessageMetadata(t *testing.T) {
	e := newEnv(t, `{"intent":"general_question"}`, `{"intent":"abandoned_cart"}`)
	conv := e.start(t, models.StartConversationRequest{})
	e.addCart(t, "a@b.com", time.Now().Add(-3*time.Hour))

	e.send(t, conv.ID, "hello", map[string]any{"customData": map[string]any{"email": "a@b.com"}})
	r := e.send(t, conv.ID, "what's in my cart?", nil)

	if r.Intent != models.IntentAbandonedCart {
		t.Fatalf("intent = %s", r.Intent)
	}
	for _, want := range []string{"2x Blue T-Shirt", "$59.98", "https://demo.example.com/c/1", "complete your purchase"} {
		if !strings.Contains(r.Message.Content, want) {
			t.Errorf("summary missing %q:\n%s", want, r.Message.Content)
		}
	}
	stored, _ := e.st.GetConversation(conv.ID)
	if stored.CustomerEmail != "a@b.com" {
		t.Errorf("resolved email not persisted, got %q", stored.CustomerEmail)
	}
	if r.Message.Metadata[models.MetaIntent] != "abandoned_cart" {
		t.Errorf("bot metadata = %v", r.Message.Metadata)
	}
}

func TestCart_EmailFallbackOrder(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart","customerEmail":"slot@b.com"}`)
	e.addCart(t, "slot@b.com", time.Now().Add(-time.Hour))

	// The conversation email wins over the classifier slot, and has no cart.
	conv := e.start(t, models.StartConversationRequest{Email: "conv@b.com"})
	if r := e.send(t, conv.ID, "my cart", nil); r.Message.Content != "general reply" {
		t.Fatalf("conversation email should win, got:\n%s", r.Message.Content)
	}

	conv2 := e.start(t, models.StartConversationRequest{SessionID: "s2"})
	r := e.send(t, conv2.ID, "my cart", nil)
	if !strings.Contains(r.Message.Content, "I found your saved cart") {
		t.Errorf("classifier email not used:\n%s", r.Message.Content)
	}
	stored, _ := e.st.GetConversation(conv2.ID)
	if stored.CustomerEmail != "slot@b.com" {
		t.Errorf("conversation email = %q, want slot@b.com", stored.CustomerEmail)
	}
}

func TestCart_EmailFromProfile(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart"}`)
	if _, err := e.st.UpsertCustomerProfile(models.CustomerProfile{StoreID: e.storeID, Identifier: "visitor-9", Email: "p@b.com"}); err != nil {
		t.Fatalf("UpsertCustomerProfile: %v", err)
	}
	e.addCart(t, "p@b.com", time.Now().Add(-time.Hour))

	conv := e.start(t, models.StartConversationRequest{VisitorID: "visitor-9"})
	r := e.send(t, conv.ID, "did I leave something in my cart?", nil)
	if !strings.Contains(r.Message.Content, "I found your saved cart") {
		t.Errorf("profile email not used:\n%s", r.Message.Content)
	}
}

func TestCart_AsksForEmail(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart"}`)
	conv := e.start(t, models.StartConversationRequest{})

	r := e.send(t, conv.ID, "my cart", nil)
	if r.Message.Content != askEmailReply {
		t.Errorf("reply = %q, want the email prompt", r.Message.Content)
	}
	if e.llm.replyCalls != 0 {
		t.Error("no responder call expected when asking for an email")
	}
}

func TestCart_NoCartsFallsBackToResponder(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart","customerEmail":"none@b.com"}`)
	conv := e.start(t, models.StartConversationRequest{})

	r := e.send(t, conv.ID, "my cart", nil)
	if r.Message.Content != "general reply" {
		t.Errorf("reply = %q", r.Message.Content)
	}
}

func TestCart_CompletePurchaseRecordsAttempt(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart","completePurchase":true}`)
	e.addCart(t, "a@b.com", time.Now().Add(-5*time.Hour))
	latest := e.addCart(t, "a@b.com", time.Now().Add(-time.Hour))
	conv := e.start(t, models.StartConversationRequest{Email: "a@b.com"})

	r := e.send(t, conv.ID, "yes, complete my purchase", nil)
	attempts, _ := e.st.ListRecoveryAttemptsByCart(latest.ID)
	if len(attempts) != 1 {
		t.Fatalf("attempts on most recent cart = %d, want 1", len(attempts))
	}
	a := attempts[0]
	if a.DiscountCode == nil || !strings.Contains(r.Message.Content, *a.DiscountCode) {
		t.Errorf("reply should carry the recorded discount code:\n%s", r.Message.Content)
	}
	if a.MessageContent != r.Message.Content {
		t.Error("reply must be the recorded recovery message verbatim")
	}
	if a.ConversationID == nil || *a.ConversationID != conv.ID || a.MessageID == nil {
		t.Errorf("attempt not tagged with the conversation: %+v", a)
	}
	if a.Status != models.AttemptStatusSent {
		t.Errorf("status = %s", a.Status)
	}
}

func TestCart_DisabledFeatureUsesGeneralPath(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart"}`)
	cs := models.DefaultChatSettings(e.storeID)
	cs.EnableCartRecovery = false
	if _, err := e.st.SaveChatSettings(cs); err != nil {
		t.Fatalf("SaveChatSettings: %v", err)
	}
	conv := e.start(t, models.StartConversationRequest{})

	r := e.send(t, conv.ID, "my cart", nil)
	if r.Message.Content != "general reply" {
		t.Errorf("reply = %q", r.Message.Content)
	}
}

func TestOrderStatus(t *testing.T) {
	e := newEnv(t, `{"intent":"order_status"}`, `{"intent":"order_status","orderNumber":"1001"}`, `{"intent":"order_status","orderNumber":"4040"}`)
	e.catalog.AddOrder(e.storeID, storefront.Order{Number: "1001", Status: "shipped", Total: decimal.RequireFromString("42"), TrackingURL: "https://track/1"})
	conv := e.start(t, models.StartConversationRequest{})

	if r := e.send(t, conv.ID, "where is my order?", nil); r.Message.Content != askOrderNumberReply {
		t.Errorf("no number reply = %q", r.Message.Content)
	}
	r := e.send(t, conv.ID, "order 1001", nil)
	for _, want := range []string{"#1001", "shipped", "$42.00", "https://track/1"} {
		if !strings.Contains(r.Message.Content, want) {
			t.Errorf("order reply missing %q: %s", want, r.Message.Content)
		}
	}
	if r := e.send(t, conv.ID, "order 4040", nil); !strings.Contains(r.Message.Content, "couldn't find an order") {
		t.Errorf("missing order reply = %q", r.Message.Content)
	}
}

func TestProductInfo(t *testing.T) {
	e := newEnv(t, `{"intent":"product_info","productQuery":"beanie"}`)
	e.catalog.AddProduct(e.storeID, storefront.Product{ID: "p1", Title: "Wool Beanie", Price: decimal.RequireFromString("18.5")})
	conv := e.start(t, models.StartConversationRequest{})

	r := e.send(t, conv.ID, "do you sell beanies?", nil)
	if len(r.Products) != 1 || r.Products[0].ID != "p1" {
		t.Fatalf("products = %+v", r.Products)
	}
	if !strings.Contains(e.llm.lastSystem, "Wool Beanie: $18.50") {
		t.Errorf("products not passed to the responder:\n%s", e.llm.lastSystem)
	}
	if _, ok := r.Message.Metadata[models.MetaProducts]; !ok {
		t.Error("bot message metadata missing products")
	}
}

func TestFAQAnswer(t *testing.T) {
	e := newEnv(t, `{"intent":"general_question"}`)
	if _, err := e.st.CreateFAQ(models.FAQ{StoreID: e.storeID, Question: "Returns?", Answer: "30 day returns."}); err != nil {
		t.Fatalf("CreateFAQ: %v", err)
	}
	conv := e.start(t, models.StartConversationRequest{})

	e.llm.faq = `{"matched":true,"faqIndex":1,"confidence":0.9}`
	if r := e.send(t, conv.ID, "can I return this?", nil); r.Message.Content != "30 day returns." {
		t.Errorf("confident match reply = %q", r.Message.Content)
	}

	e.llm.faq = `{"matched":true,"faqIndex":1,"confidence":0.5}`
	if r := e.send(t, conv.ID, "what about socks?", nil); r.Message.Content != "general reply" {
		t.Errorf("weak match reply = %q", r.Message.Content)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	e := newEnv(t, `{"intent":"general_question"}`)
	if _, err := e.svc.HandleMessage(context.Background(), 999, models.ChatMessageRequest{Content: "hi"}); !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("missing conversation err = %v", err)
	}

	conv := e.start(t, models.StartConversationRequest{})
	req := models.ChatMessageRequest{Content: "hi", Metadata: map[string]any{models.MetaClientID: "m-1"}}
	if _, err := e.svc.HandleMessage(context.Background(), conv.ID, req); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := e.svc.HandleMessage(context.Background(), conv.ID, req); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("second delivery err = %v, want ErrDuplicateMessage", err)
	}
	msgs, _ := e.st.ListMessages(conv.ID)
	if len(msgs) != 3 {
		t.Errorf("messages = %d, want welcome + user + bot", len(msgs))
	}
}

func TestHandleMessage_NoLLM(t *testing.T) {
	e := newEnv(t)
	e.svc = NewService(e.st)
	conv := e.start(t, models.StartConversationRequest{})

	r := e.send(t, conv.ID, "my cart", nil)
	if r.Intent != models.IntentGeneralQuestion || r.Message.Content != assistant.FallbackReply {
		t.Errorf("reply without a model = %+v", r)
	}
}

// flakyCartStore fails the first cart lookup.
type flakyCartStore struct {
	store.Store
	failures int
}

func (f *flakyCartStore) ListCartsByEmail(storeID int64, email string) ([]models.AbandonedCart, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient db error")
	}
	return f.Store.ListCartsByEmail(storeID, email)
}

func TestHandleMessage_RetryAfterFailure(t *testing.T) {
	e := newEnv(t, `{"intent":"abandoned_cart","customerEmail":"a@b.com"}`)
	flaky := &flakyCartStore{Store: e.st, failures: 1}
	e.svc = NewService(flaky, WithLLM(e.llm), WithStorefront(e.catalog))
	conv := e.start(t, models.StartConversationRequest{})
	e.addCart(t, "a@b.com", time.Now().Add(-3*time.Hour))

	req := models.ChatMessageRequest{Content: "where is my cart?", Metadata: map[string]any{models.MetaClientID: "m-7"}}
	if _, err := e.svc.HandleMessage(context.Background(), conv.ID, req); err == nil {
		t.Fatal("expected the first delivery to fail")
	}
	r, err := e.svc.HandleMessage(context.Background(), conv.ID, req)
	if err != nil {
		t.Fatalf("retry after a failed delivery: %v", err)
	}
	if !strings.Contains(r.Message.Content, "Blue T-Shirt") {
		t.Errorf("retry reply = %q", r.Message.Content)
	}
	if _, err := e.svc.HandleMessage(context.Background(), conv.ID, req); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("third delivery err = %v, want ErrDuplicateMessage", err)
	}
}
