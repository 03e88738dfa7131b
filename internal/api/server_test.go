package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/chat"
	"github.com/BTreeMap/ShopPipe/internal/metrics"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/testutil"
)

type testServer struct {
	t       *testing.T
	st      *store.InMemoryStore
	handler http.Handler
	storeID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewInMemoryStore()
	reg := prometheus.NewRegistry()
	runner := cartrecovery.NewRunner(st, cartrecovery.WithMetrics(metrics.NewAutomation(reg)))
	chatSvc := chat.NewService(st, chat.WithRecovery(runner.Builder(), runner.Ledger()))
	srv := NewServer(st, runner, chatSvc, WithGatherer(reg))

	s, err := st.CreateStore(models.Store{Name: "Demo Store", Domain: "demo.example.com"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return &testServer{t: t, st: st, handler: srv.Handler(), storeID: s.ID}
}

func (ts *testServer) do(method, path, body string) (*httptest.ResponseRecorder, testutil.APIEnvelope) {
	ts.t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, testutil.NewJSONRequest(ts.t, method, path, body))
	return rec, testutil.DecodeAPIResponse(ts.t, rec)
}

func (ts *testServer) expect(method, path, body string, want int) testutil.APIEnvelope {
	ts.t.Helper()
	rec, env := ts.do(method, path, body)
	if rec.Code != want {
		ts.t.Logf("response body: %s", rec.Body.String())
	}
	testutil.AssertHTTPStatus(ts.t, want, rec.Code, method+" "+path)
	return env
}

func decodeResult[T any](t *testing.T, env testutil.APIEnvelope) T {
	t.Helper()
	return testutil.DecodeResult[T](t, env)
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	env := ts.expect(http.MethodGet, "/healthz", "", http.StatusOK)
	if env.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q", env.Status)
	}
}

func TestCreateStore(t *testing.T) {
	ts := newTestServer(t)
	env := ts.expect(http.MethodPost, "/api/stores", `{"name":"Shop","domain":"Shop.Example.com"}`, http.StatusCreated)
	s := decodeResult[models.Store](t, env)
	if s.ID == 0 || s.Domain != "shop.example.com" {
		t.Errorf("store = %+v", s)
	}

	ts.expect(http.MethodPost, "/api/stores", `{"name":"","domain":"x"}`, http.StatusBadRequest)
	ts.expect(http.MethodPost, "/api/stores", `{not json`, http.StatusBadRequest)

	stores := decodeResult[[]models.Store](t, ts.expect(http.MethodGet, "/api/stores", "", http.StatusOK))
	if len(stores) != 2 {
		t.Errorf("stores = %d, want 2", len(stores))
	}
}

func TestAutomationSettingsLifecycle(t *testing.T) {
	ts := newTestServer(t)
	settingsPath := fmt.Sprintf("/api/stores/%d/automation-settings", ts.storeID)

	ts.expect(http.MethodGet, settingsPath, "", http.StatusNotFound)

	body := fmt.Sprintf(`{"store_id":%d,"is_enabled":true,"initial_delay_hours":2}`, ts.storeID)
	created := decodeResult[models.AutomationSettings](t, ts.expect(http.MethodPost, "/api/automation-settings", body, http.StatusCreated))
	if !created.IsEnabled || created.InitialDelayHours != 2 || created.FollowUpDelayHours != 24 {
		t.Errorf("created = %+v", created)
	}
	if created.FinalTemplate != models.DefaultTemplates.Final {
		t.Error("unset templates should take the defaults")
	}
	ts.expect(http.MethodPost, "/api/automation-settings", body, http.StatusConflict)
	ts.expect(http.MethodPost, "/api/automation-settings", `{"store_id":999}`, http.StatusNotFound)
	ts.expect(http.MethodPost, "/api/automation-settings", fmt.Sprintf(`{"store_id":%d,"final_delay_hours":100}`, ts.storeID), http.StatusBadRequest)

	patchPath := fmt.Sprintf("/api/automation-settings/%d", created.ID)
	updated := decodeResult[models.AutomationSettings](t, ts.expect(http.MethodPatch, patchPath,
		`{"follow_up_delay_hours":12,"discount_amount":"5","discount_type":"fixed"}`, http.StatusOK))
	if updated.FollowUpDelayHours != 12 || updated.InitialDelayHours != 2 || updated.DiscountType != models.DiscountTypeFixed {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.DiscountAmount.Equal(decimalFromString(t, "5")) {
		t.Errorf("discount amount = %s", updated.DiscountAmount)
	}

	ts.expect(http.MethodPatch, patchPath, `{"discount_type":"bogus"}`, http.StatusBadRequest)
	ts.expect(http.MethodPatch, patchPath, `{"discount_type":"percentage","discount_amount":"150"}`, http.StatusBadRequest)
	ts.expect(http.MethodPatch, "/api/automation-settings/999", `{"is_enabled":false}`, http.StatusNotFound)
	ts.expect(http.MethodPatch, "/api/automation-settings/abc", `{}`, http.StatusBadRequest)

	got := decodeResult[models.AutomationSettings](t, ts.expect(http.MethodGet, settingsPath, "", http.StatusOK))
	if got.FollowUpDelayHours != 12 {
		t.Errorf("persisted follow-up delay = %d", got.FollowUpDelayHours)
	}
}

func TestCartSyncAndList(t *testing.T) {
	ts := newTestServer(t)
	path := fmt.Sprintf("/api/stores/%d/carts", ts.storeID)

	body := `{"external_checkout_id":"chk-1","customer_email":"Ana@Example.com",
		"cart_items":"[{\"title\":\"Mug\",\"price\":\"8\",\"quantity\":\"2\"}]"}`
	cart := decodeResult[models.AbandonedCart](t, ts.expect(http.MethodPost, path, body, http.StatusOK))
	if cart.CustomerEmail != "ana@example.com" || len(cart.CartItems) != 1 || cart.CartItems[0].Quantity != 2 {
		t.Errorf("cart = %+v", cart)
	}

	again := decodeResult[models.AbandonedCart](t, ts.expect(http.MethodPost, path,
		`{"external_checkout_id":"chk-1","cart_items":{"title":"Cap","price":12}}`, http.StatusOK))
	if again.ID != cart.ID || again.CartItems[0].Title != "Cap" {
		t.Errorf("resync should update cart %d, got %+v", cart.ID, again)
	}
	if !again.AbandonedAt.Equal(cart.AbandonedAt) {
		t.Errorf("resync without abandoned_at moved it from %v to %v", cart.AbandonedAt, again.AbandonedAt)
	}

	ts.expect(http.MethodPost, path, `{"external_checkout_id":"chk-2","cart_items":[{"title":"Mug","quantity":"0.5"}]}`, http.StatusBadRequest)

	ts.expect(http.MethodPost, path, `{"customer_email":"a@b.com"}`, http.StatusBadRequest)
	ts.expect(http.MethodPost, "/api/stores/999/carts", `{"external_checkout_id":"x"}`, http.StatusNotFound)

	carts := decodeResult[[]models.AbandonedCart](t, ts.expect(http.MethodGet, path, "", http.StatusOK))
	if len(carts) != 1 {
		t.Errorf("carts = %d, want 1", len(carts))
	}
}

func TestSimulateCarts(t *testing.T) {
	ts := newTestServer(t)
	path := fmt.Sprintf("/api/stores/%d/carts/simulate", ts.storeID)

	carts := decodeResult[[]models.AbandonedCart](t, ts.expect(http.MethodPost, path, `{"count":3}`, http.StatusCreated))
	if len(carts) != 3 {
		t.Fatalf("simulated = %d, want 3", len(carts))
	}
	for _, c := range carts {
		if !strings.HasSuffix(c.CustomerEmail, "@example.com") || !strings.HasPrefix(c.CheckoutURL, "https://demo.example.com/checkouts/") {
			t.Errorf("simulated cart = %+v", c)
		}
	}

	defaults := decodeResult[[]models.AbandonedCart](t, ts.expect(http.MethodPost, path, "", http.StatusCreated))
	if len(defaults) != cartrecovery.DefaultSimulateCount {
		t.Errorf("default count = %d", len(defaults))
	}
	ts.expect(http.MethodPost, "/api/stores/999/carts/simulate", `{}`, http.StatusNotFound)
}

func TestAutomationRunAndAttemptStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(http.MethodPost, "/api/automation-settings", fmt.Sprintf(`{"store_id":%d,"is_enabled":true}`, ts.storeID), http.StatusCreated)
	cart, err := ts.st.UpsertCart(models.AbandonedCart{
		StoreID:            ts.storeID,
		ExternalCheckoutID: "chk-run",
		CustomerEmail:      "run@example.com",
		CartItems:          models.CartItems{{Title: "Mug", Price: decimalFromString(t, "8"), Quantity: 1}},
		AbandonedAt:        time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}

	result := decodeResult[cartrecovery.RunResult](t, ts.expect(http.MethodPost, "/api/automation/run", "", http.StatusOK))
	if !result.Success || result.Sent != 1 {
		t.Fatalf("run result = %+v", result)
	}

	cartPath := fmt.Sprintf("/api/carts/%d/recovery-attempts", cart.ID)
	attempts := decodeResult[[]models.RecoveryAttempt](t, ts.expect(http.MethodGet, cartPath, "", http.StatusOK))
	if len(attempts) != 1 || attempts[0].Status != models.AttemptStatusSent {
		t.Fatalf("attempts = %+v", attempts)
	}
	ts.expect(http.MethodGet, "/api/carts/999/recovery-attempts", "", http.StatusNotFound)

	storePath := fmt.Sprintf("/api/stores/%d/recovery-attempts", ts.storeID)
	byStatus := decodeResult[[]models.RecoveryAttempt](t, ts.expect(http.MethodGet, storePath+"?status=sent&cartId="+fmt.Sprint(cart.ID), "", http.StatusOK))
	if len(byStatus) != 1 {
		t.Errorf("filtered attempts = %d, want 1", len(byStatus))
	}
	none := decodeResult[[]models.RecoveryAttempt](t, ts.expect(http.MethodGet, storePath+"?status=converted", "", http.StatusOK))
	if len(none) != 0 {
		t.Errorf("converted attempts = %d, want 0", len(none))
	}
	ts.expect(http.MethodGet, storePath+"?status=lost", "", http.StatusBadRequest)

	statusPath := fmt.Sprintf("/api/recovery-attempts/%d/status", attempts[0].ID)
	converted := decodeResult[models.RecoveryAttempt](t, ts.expect(http.MethodPatch, statusPath, `{"status":"converted"}`, http.StatusOK))
	if converted.ConvertedAt == nil {
		t.Error("converted attempt should carry converted_at")
	}
	ts.expect(http.MethodPatch, statusPath, `{"status":"converted"}`, http.StatusOK)
	ts.expect(http.MethodPatch, statusPath, `{"status":"sent"}`, http.StatusConflict)
	ts.expect(http.MethodPatch, statusPath, `{"status":"opened"}`, http.StatusBadRequest)
	ts.expect(http.MethodPatch, "/api/recovery-attempts/999/status", `{"status":"clicked"}`, http.StatusNotFound)

	rec, _ := ts.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shoppipe_automation_runs_total") {
		t.Errorf("metrics endpoint missing run counter: %d", rec.Code)
	}
}

func TestChatSettingsAndFAQs(t *testing.T) {
	ts := newTestServer(t)
	settingsPath := fmt.Sprintf("/api/stores/%d/chat-settings", ts.storeID)

	defaults := decodeResult[models.ChatSettings](t, ts.expect(http.MethodGet, settingsPath, "", http.StatusOK))
	if !defaults.EnableCartRecovery || defaults.WelcomeMessage == "" {
		t.Errorf("defaults = %+v", defaults)
	}
	ts.expect(http.MethodGet, "/api/stores/999/chat-settings", "", http.StatusNotFound)

	saved := decodeResult[models.ChatSettings](t, ts.expect(http.MethodPut, settingsPath,
		`{"bot_name":"Max","tone":"Professional","response_length":"short","enable_cart_recovery":false}`, http.StatusOK))
	if saved.Tone != "professional" || saved.EnableCartRecovery || saved.WelcomeMessage == "" {
		t.Errorf("saved = %+v", saved)
	}
	ts.expect(http.MethodPut, settingsPath, `{"bot_name":"Max","tone":"sarcastic","response_length":"short"}`, http.StatusBadRequest)

	faqPath := fmt.Sprintf("/api/stores/%d/faqs", ts.storeID)
	faq := decodeResult[models.FAQ](t, ts.expect(http.MethodPost, faqPath, `{"question":"Returns?","answer":"30 days."}`, http.StatusCreated))
	ts.expect(http.MethodPost, faqPath, `{"question":"Returns?"}`, http.StatusBadRequest)
	faqs := decodeResult[[]models.FAQ](t, ts.expect(http.MethodGet, faqPath, "", http.StatusOK))
	if len(faqs) != 1 {
		t.Errorf("faqs = %d, want 1", len(faqs))
	}
	ts.expect(http.MethodDelete, fmt.Sprintf("/api/faqs/%d", faq.ID), "", http.StatusOK)
	ts.expect(http.MethodDelete, fmt.Sprintf("/api/faqs/%d", faq.ID), "", http.StatusNotFound)
}

func TestChatConversation(t *testing.T) {
	ts := newTestServer(t)
	started := decodeResult[chat.Started](t, ts.expect(http.MethodPost, "/api/chat/conversations",
		fmt.Sprintf(`{"store_id":%d,"session_id":"sess-1"}`, ts.storeID), http.StatusCreated))
	if started.Conversation.ID == 0 || started.Welcome.Content == "" {
		t.Fatalf("started = %+v", started)
	}
	ts.expect(http.MethodPost, "/api/chat/conversations", `{"store_id":999,"session_id":"s"}`, http.StatusNotFound)
	ts.expect(http.MethodPost, "/api/chat/conversations", `{"store_id":1}`, http.StatusBadRequest)

	msgPath := fmt.Sprintf("/api/chat/conversations/%d/messages", started.Conversation.ID)
	body := `{"content":"hello","metadata":{"client_message_id":"m-1"}}`
	reply := decodeResult[chat.Reply](t, ts.expect(http.MethodPost, msgPath, body, http.StatusOK))
	if reply.Intent != models.IntentGeneralQuestion || reply.Message.Role != models.RoleAssistant {
		t.Errorf("reply = %+v", reply)
	}
	ts.expect(http.MethodPost, msgPath, body, http.StatusConflict)
	ts.expect(http.MethodPost, msgPath, `{"content":"   "}`, http.StatusBadRequest)
	ts.expect(http.MethodPost, "/api/chat/conversations/999/messages", `{"content":"hi"}`, http.StatusNotFound)

	msgs := decodeResult[[]models.Message](t, ts.expect(http.MethodGet, msgPath, "", http.StatusOK))
	if len(msgs) != 3 {
		t.Errorf("messages = %d, want welcome + user + bot", len(msgs))
	}
	ts.expect(http.MethodGet, "/api/chat/conversations/999/messages", "", http.StatusNotFound)
}

func TestWriteJSONResponse_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, models.Success(make(chan int)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), fallbackErrorResponse) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
