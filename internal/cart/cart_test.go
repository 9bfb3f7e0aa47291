package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"storefront/internal/util"
	"storefront/pkg/domain"
	"storefront/pkg/store"
)

var (
	dune   = domain.Product{ID: "b1", Title: "Dune", Author: "Frank Herbert", Price: 9.99}
	emma   = domain.Product{ID: "b2", Title: "Emma", Author: "Jane Austen", Price: 4.5}
	hobbit = domain.Product{ID: "b3", Title: "The Hobbit", Author: "J.R.R. Tolkien", Price: 7.25}
)

func newCart(t *testing.T) (*Cart, *store.MemoryKV) {
	t.Helper()
	kv := store.NewMemoryKV()
	c := New(kv, util.DiscardLogger())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c, kv
}

func persistedItems(t *testing.T, kv store.KV) []domain.LineItem {
	t.Helper()
	raw, ok, err := kv.Get(context.Background(), store.KeyCartItems)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !ok {
		return nil
	}
	var items []domain.LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("decode persisted cart %q: %v", raw, err)
	}
	return items
}

func TestAddSameProductTwiceIncrementsQuantity(t *testing.T) {
	c, kv := newCart(t)
	ctx := context.Background()

	for _, p := range []domain.Product{dune, emma, dune} {
		if err := c.Add(ctx, p); err != nil {
			t.Fatalf("add %s: %v", p.ID, err)
		}
	}
	items := c.Items()
	if len(items) != 2 || items[0].ID != "b1" || items[1].ID != "b2" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Quantity != 2 || items[1].Quantity != 1 {
		t.Fatalf("unexpected quantities: %+v", items)
	}
	if c.Count() != 2 || c.TotalQuantity() != 3 {
		t.Fatalf("count=%d total=%d", c.Count(), c.TotalQuantity())
	}
	if got := persistedItems(t, kv); len(got) != 2 || got[0].Quantity != 2 {
		t.Fatalf("unexpected persisted items: %+v", got)
	}
}

func TestUpdateQuantity(t *testing.T) {
	c, kv := newCart(t)
	ctx := context.Background()
	_ = c.Add(ctx, dune)
	_ = c.Add(ctx, emma)

	if err := c.UpdateQuantity(ctx, "b2", 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if items := c.Items(); items[1].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %+v", items[1])
	}

	for _, qty := range []int{0, -3} {
		_ = c.Add(ctx, hobbit)
		if err := c.UpdateQuantity(ctx, "b3", qty); err != nil {
			t.Fatalf("update to %d: %v", qty, err)
		}
		for _, it := range c.Items() {
			if it.ID == "b3" {
				t.Fatalf("quantity %d should remove the item", qty)
			}
		}
	}

	if err := c.UpdateQuantity(ctx, "missing", 3); err != nil {
		t.Fatalf("unknown id should be a no-op: %v", err)
	}
	if got := persistedItems(t, kv); len(got) != 2 || got[1].Quantity != 5 {
		t.Fatalf("unexpected persisted items: %+v", got)
	}
}

func TestRemove(t *testing.T) {
	c, _ := newCart(t)
	ctx := context.Background()
	_ = c.Add(ctx, dune)
	_ = c.Add(ctx, emma)
	_ = c.Add(ctx, hobbit)

	if err := c.Remove(ctx, "b2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Remove(ctx, "b2"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	items := c.Items()
	if len(items) != 2 || items[0].ID != "b1" || items[1].ID != "b3" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	c, kv := newCart(t)
	ctx := context.Background()
	_ = c.Add(ctx, dune)

	for i := 0; i < 2; i++ {
		if err := c.Clear(ctx); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
		if c.Count() != 0 || len(c.Items()) != 0 {
			t.Fatalf("expected empty cart after clear #%d", i+1)
		}
	}
	raw, _, _ := kv.Get(ctx, store.KeyCartItems)
	if raw != "[]" {
		t.Fatalf("expected empty list persisted, got %q", raw)
	}
}

func TestSubtotal(t *testing.T) {
	c, _ := newCart(t)
	ctx := context.Background()
	_ = c.Add(ctx, dune)
	_ = c.Add(ctx, dune)
	_ = c.Add(ctx, emma)

	if got := c.Subtotal(); math.Abs(got-24.48) > 1e-9 {
		t.Fatalf("expected 24.48, got %v", got)
	}
}

func TestAddRejectsMissingID(t *testing.T) {
	c, kv := newCart(t)
	if err := c.Add(context.Background(), domain.Product{Title: "No id"}); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected invalid product, got %v", err)
	}
	if _, ok, _ := kv.Get(context.Background(), store.KeyCartItems); ok {
		t.Fatalf("nothing should be persisted")
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	c, _ := newCart(t)
	_ = c.Add(context.Background(), dune)
	items := c.Items()
	items[0].Quantity = 99
	if c.Items()[0].Quantity != 1 {
		t.Fatalf("mutating the copy changed the cart")
	}
}

func TestLoadRestoresPersistedCart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := store.NewFileKV(filepath.Join(dir, "profiles"), "alice")
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	first := New(kv, util.DiscardLogger())
	_ = first.Load(ctx)
	_ = first.Add(ctx, dune)
	_ = first.Add(ctx, emma)
	_ = first.UpdateQuantity(ctx, "b1", 4)
	_ = kv.Close()

	reopened, err := store.NewFileKV(filepath.Join(dir, "profiles"), "alice")
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	second := New(reopened, util.DiscardLogger())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	items := second.Items()
	if len(items) != 2 || items[0].Quantity != 4 || items[1].Title != "Emma" {
		t.Fatalf("unexpected restored items: %+v", items)
	}
}

func TestLoadDiscardsCorruptCart(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	_ = kv.Set(ctx, store.KeyCartItems, "{not json")

	c := New(kv, util.DiscardLogger())
	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Count() != 0 {
		t.Fatalf("expected empty cart")
	}
	if _, ok, _ := kv.Get(ctx, store.KeyCartItems); ok {
		t.Fatalf("expected corrupt entry deleted")
	}
}

func TestLoadRepairsInvalidItems(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	_ = kv.Set(ctx, store.KeyCartItems, `[
		{"id":"b1","title":"Dune","quantity":1},
		{"id":"","title":"Ghost","quantity":1},
		{"id":"b2","title":"Emma","quantity":0},
		{"id":"b1","title":"Dune","quantity":2}
	]`)

	c := New(kv, util.DiscardLogger())
	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	items := c.Items()
	if len(items) != 1 || items[0].ID != "b1" || items[0].Quantity != 3 {
		t.Fatalf("unexpected repaired items: %+v", items)
	}
}

type failingKV struct {
	*store.MemoryKV
	err error
}

func (f *failingKV) Set(context.Context, string, string) error {
	return f.err
}

func TestPersistFailureKeepsInMemoryChange(t *testing.T) {
	boom := errors.New("disk full")
	c := New(&failingKV{MemoryKV: store.NewMemoryKV(), err: boom}, util.DiscardLogger())

	if err := c.Add(context.Background(), dune); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("in-memory mutation should stand")
	}
}

func TestConcurrentAdds(t *testing.T) {
	c, kv := newCart(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Add(ctx, dune)
		}()
	}
	wg.Wait()

	if c.Count() != 1 || c.TotalQuantity() != 20 {
		t.Fatalf("count=%d total=%d", c.Count(), c.TotalQuantity())
	}
	if got := persistedItems(t, kv); got[0].Quantity != 20 {
		t.Fatalf("expected last write to carry all adds, got %+v", got)
	}
}
