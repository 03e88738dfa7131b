// Package storefront defines the black-box product and order lookup that the
// chat pipeline consults. ShopPipe does not talk to a storefront platform
// directly; deployments plug in an implementation of Service.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotConnected is returned when the store has no storefront integration.
var ErrNotConnected = errors.New("storefront not connected")

// Product is one searchable catalog entry.
type Product struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	URL      string          `json:"url,omitempty"`
	Image    string          `json:"image,omitempty"`
}

// Order is the subset of an order the chat bot reports back.
type Order struct {
	Number         string          `json:"number"`
	Status         string          `json:"status"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	PlacedAt       time.Time       `json:"placed_at"`
	CustomerEmail  string          `json:"customer_email,omitempty"`
	FulfilledItems int             `json:"fulfilled_items"`
}

// Service looks up orders and products for a store. LookupOrder returns
// (nil, nil) when the order does not exist.
type Service interface {
	LookupOrder(ctx context.Context, storeID int64, orderNumber string) (*Order, error)
	SearchProducts(ctx context.Context, storeID int64, query string, limit int) ([]Product, error)
}

// Unavailable is the Service used when no storefront is configured.
type Unavailable struct{}

func (Unavailable) LookupOrder(context.Context, int64, string) (*Order, error) {
	return nil, ErrNotConnected
}

func (Unavailable) SearchProducts(context.Context, int64, string, int) ([]Product, error) {
	return nil, ErrNotConnected
}

// Catalog is an in-memory Service keyed by store id, used for demos and tests.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64][]Product
	orders   map[int64]map[string]Order
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[int64][]Product),
		orders:   make(map[int64]map[string]Order),
	}
}

// AddProduct appends a product to a store's catalog.
func (c *Catalog) AddProduct(storeID int64, p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[storeID] = append(c.products[storeID], p)
}

// AddOrder registers an order under its normalized number.
func (c *Catalog) AddOrder(storeID int64, o Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orders[storeID] == nil {
		c.orders[storeID] = make(map[string]Order)
	}
	c.orders[storeID][NormalizeOrderNumber(o.Number)] = o
}

func (c *Catalog) LookupOrder(_ context.Context, storeID int64, orderNumber string) (*Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[storeID][NormalizeOrderNumber(orderNumber)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// SearchProducts matches every query word against product titles,
// case-insensitively. A non-positive limit means no limit.
func (c *Catalog) SearchProducts(_ context.Context, storeID int64, query string, limit int) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	words := strings.Fields(strings.ToLower(query))
	var out []Product
	for _, p := range c.products[storeID] {
		title := strings.ToLower(p.Title)
		matched := true
		for _, w := range words {
			if !strings.Contains(title, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// NormalizeOrderNumber strips whitespace and a leading '#'.
func NormalizeOrderNumber(n string) string {
	return strings.TrimPrefix(strings.TrimSpace(n), "#")
}

var (
	_ Service = Unavailable{}
	_ Service = (*Catalog)(nil)
)

// catalogFileEntry is one store's section of a catalog file.
type catalogFileEntry struct {
	StoreID  int64     `json:"store_id"`
	Products []Product `json:"products"`
	Orders   []Order   `json:"orders"`
}

// LoadCatalog reads a JSON array of {store_id, products, orders} sections.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var entries []catalogFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	c := NewCatalog()
	for _, e := range entries {
		if e.StoreID <= 0 {
			return nil, fmt.Errorf("catalog %s: store_id must be positive", path)
		}
		for _, p := range e.Products {
			c.AddProduct(e.StoreID, p)
		}
		for _, o := range e.Orders {
			c.AddOrder(e.StoreID, o)
		}
	}
	return c, nil
}
