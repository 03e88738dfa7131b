package cartrecovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/messaging"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

type fixture struct {
	st       *store.InMemoryStore
	storeID  int64
	settings models.AutomationSettings
	now      time.Time
}

// newFixture creates a store with enabled default automation settings and a
// frozen clock shared by the store and the runner.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:  store.NewInMemoryStore(),
		now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.st.SetClock(f.clock)

	s, err := f.st.CreateStore(models.Store{Name: "Demo Store", Domain: "demo.example.com"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	f.storeID = s.ID

	as := models.DefaultAutomationSettings(s.ID)
	as.IsEnabled = true
	f.settings, err = f.st.CreateAutomationSettings(as)
	if err != nil {
		t.Fatalf("CreateAutomationSettings: %v", err)
	}
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) addCart(t *testing.T, checkoutID, email string, abandonedAgo time.Duration) models.AbandonedCart {
	t.Helper()
	c, err := f.st.UpsertCart(models.AbandonedCart{
		StoreID:            f.storeID,
		ExternalCheckoutID: checkoutID,
		CustomerEmail:      email,
		CustomerName:       "John",
		CartItems: models.CartItems{
			{Title: "Blue T-Shirt", Price: decimal.RequireFromString("29.99"), Quantity: 1},
		},
		CheckoutURL: "https://demo.example.com/c/" + checkoutID,
		AbandonedAt: f.now.Add(-abandonedAgo),
	})
	if err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}
	return c
}

func (f *fixture) addAttempt(t *testing.T, cartID int64, sentAgo time.Duration, status models.AttemptStatus) {
	t.Helper()
	if _, err := f.st.CreateRecoveryAttempt(models.RecoveryAttempt{
		CartID:         cartID,
		MessageContent: "earlier",
		Status:         status,
		SentAt:         f.now.Add(-sentAgo),
	}); err != nil {
		t.Fatalf("CreateRecoveryAttempt: %v", err)
	}
}

func (f *fixture) attempts(t *testing.T, cartID int64) []models.RecoveryAttempt {
	t.Helper()
	list, err := f.st.ListRecoveryAttemptsByCart(cartID)
	if err != nil {
		t.Fatalf("ListRecoveryAttemptsByCart: %v", err)
	}
	return list
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []messaging.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n messaging.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}
