package cartrecovery

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/util"
)

// Simulation bounds.
const (
	DefaultSimulateCount = 5
	MaxSimulateCount     = 50
)

var sampleProducts = []models.CartItem{
	{ProductID: "sim-101", Title: "Classic Cotton T-Shirt", Price: decimal.RequireFromString("24.99")},
	{ProductID: "sim-102", Title: "Slim Fit Jeans", Price: decimal.RequireFromString("59.90")},
	{ProductID: "sim-103", Title: "Canvas Sneakers", Price: decimal.RequireFromString("74.00")},
	{ProductID: "sim-104", Title: "Wool Beanie", Price: decimal.RequireFromString("18.50")},
	{ProductID: "sim-105", Title: "Leather Wallet", Price: decimal.RequireFromString("39.95")},
	{ProductID: "sim-106", Title: "Stainless Water Bottle", Price: decimal.RequireFromString("22.00")},
}

var sampleCustomers = []string{"Alex Morgan", "Sam Rivera", "Jordan Lee", "Taylor Kim", "Casey Patel", "Riley Chen"}

// Simulate creates count synthetic abandoned carts for storeID with random
// items and abandonment times within the candidate window. It is dashboard
// test tooling, not production behavior.
func Simulate(st store.Store, storeID int64, count int, now time.Time) ([]models.AbandonedCart, error) {
	s, err := st.GetStore(storeID)
	if err != nil {
		return nil, fmt.Errorf("load store %d: %w", storeID, err)
	}
	if s == nil {
		return nil, store.ErrStoreNotFound
	}
	if count <= 0 {
		count = DefaultSimulateCount
	}
	if count > MaxSimulateCount {
		count = MaxSimulateCount
	}

	carts := make([]models.AbandonedCart, 0, count)
	for i := 0; i < count; i++ {
		checkoutID := util.GenerateCheckoutID()
		items := make(models.CartItems, 0, 3)
		for j, n := 0, util.RandomIntInRange(1, 3); j < n; j++ {
			item := sampleProducts[util.RandomIntInRange(0, len(sampleProducts)-1)]
			item.Quantity = util.RandomIntInRange(1, 3)
			items = append(items, item)
		}
		name := sampleCustomers[util.RandomIntInRange(0, len(sampleCustomers)-1)]
		abandonedAt := now.Add(-time.Duration(util.RandomIntInRange(1, 71)) * time.Hour)
		cart, err := st.UpsertCart(models.AbandonedCart{
			StoreID:            storeID,
			ExternalCheckoutID: checkoutID,
			CustomerEmail:      fmt.Sprintf("%s@example.com", checkoutID),
			CustomerName:       name,
			TotalPrice:         decimal.NewNullDecimal(items.Total()),
			Currency:           "USD",
			CartItems:          items,
			CheckoutURL:        fmt.Sprintf("https://%s/checkouts/%s", s.Domain, checkoutID),
			AbandonedAt:        abandonedAt,
		})
		if err != nil {
			return carts, fmt.Errorf("insert simulated cart: %w", err)
		}
		carts = append(carts, cart)
	}
	return carts, nil
}
