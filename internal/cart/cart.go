// Package cart keeps the shopper's line items and mirrors them to the
// persistent store after every change.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"storefront/pkg/domain"
	"storefront/pkg/store"
)

var ErrInvalidProduct = errors.New("product id is required")

// Cart is safe for concurrent use.
type Cart struct {
	kv     store.KV
	logger *slog.Logger

	mu    sync.Mutex
	items []domain.LineItem
}

func New(kv store.KV, logger *slog.Logger) *Cart {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cart{kv: kv, logger: logger.With("component", "cart")}
}

// Load replaces the in-memory cart with the persisted one. A corrupt entry is
// deleted and the cart starts empty.
func (c *Cart) Load(ctx context.Context) error {
	raw, ok, err := c.kv.Get(ctx, store.KeyCartItems)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	var items []domain.LineItem
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			c.logger.Warn("discarding corrupt cart", "err", err)
			items = nil
			if err := c.kv.Delete(ctx, store.KeyCartItems); err != nil {
				c.logger.Warn("delete corrupt cart failed", "err", err)
			}
		}
	}
	items = sanitize(items)

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// sanitize drops entries without an id, merges duplicate ids and removes
// non-positive quantities so a hand-edited store cannot break the invariants.
func sanitize(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" || it.Quantity < 1 {
			continue
		}
		if i, ok := index[it.ID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

// Add puts one unit of p in the cart.
func (c *Cart) Add(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProduct
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == p.ID {
			c.items[i].Quantity++
			return c.persistLocked(ctx)
		}
	}
	c.items = append(c.items, domain.LineItem{
		ID:       p.ID,
		Title:    p.Title,
		Author:   p.Author,
		Price:    p.Price,
		Quantity: 1,
	})
	return c.persistLocked(ctx)
}

// UpdateQuantity sets the quantity of an existing item. A quantity below one
// removes it; an unknown id is a no-op.
func (c *Cart) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity < 1 {
		return c.Remove(ctx, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			if c.items[i].Quantity == quantity {
				return nil
			}
			c.items[i].Quantity = quantity
			return c.persistLocked(ctx)
		}
	}
	return nil
}

func (c *Cart) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return c.persistLocked(ctx)
		}
	}
	return nil
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	return c.persistLocked(ctx)
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Count is the number of distinct line items.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) TotalQuantity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Subtotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0.0
	for _, it := range c.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// persistLocked writes the whole list. The in-memory change stands even if
// the write fails.
func (c *Cart) persistLocked(ctx context.Context) error {
	items := c.items
	if items == nil {
		items = []domain.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := c.kv.Set(ctx, store.KeyCartItems, string(raw)); err != nil {
		c.logger.Warn("persist cart failed", "err", err)
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}
