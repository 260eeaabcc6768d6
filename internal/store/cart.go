package store

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/kv"
	"github.com/lherron/cartsync/internal/queue"
)

// CartStore handles the local cart.
type CartStore struct {
	storage kv.Storage
	bus     *events.Bus
	log     logrus.FieldLogger
	now     func() time.Time
	writes  *queue.Queue

	// pubMu orders commits end to end, so changes are published in the
	// order they were applied. Handlers must not mutate the cart.
	pubMu sync.Mutex

	mu    sync.Mutex
	items []domain.CartItem
	// gen increments on every in-memory change; LoadCart uses it to detect
	// mutations that raced the storage read.
	gen uint64

	cbMu          sync.Mutex
	callbackUnsub func()
}

// AddToCart adds quantity of product with the given variant selection. An
// existing line with the same merge key has its quantity increased;
// otherwise a new line is appended.
func (c *CartStore) AddToCart(product domain.Product, quantity int, selectedVariants map[string]string) error {
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	if err := domain.ValidateVariantKeyParts(selectedVariants); err != nil {
		return err
	}

	selections := make(map[string]string, len(selectedVariants))
	for k, v := range selectedVariants {
		selections[k] = v
	}
	itemID := domain.CartItemID(product.ID, selections)
	now := c.now()

	c.commit("item_added", "", func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity += quantity
				return items, true
			}
		}
		return append(items, domain.CartItem{
			ID:               itemID,
			Product:          product,
			Quantity:         quantity,
			SelectedVariants: selections,
			DateAdded:        now,
		}), true
	})
	return nil
}

// RemoveFromCart removes the line with itemID. Unknown ids are ignored.
func (c *CartStore) RemoveFromCart(itemID string) {
	c.commit("item_removed", "", func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].ID == itemID {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line. Setting a line to its current quantity still persists
// and notifies; unknown ids are ignored.
func (c *CartStore) UpdateQuantity(itemID string, quantity int) {
	if quantity <= 0 {
		c.RemoveFromCart(itemID)
		return
	}
	c.commit("quantity_updated", "", func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity = quantity
				return items, true
			}
		}
		return items, false
	})
}

// ClearCart empties the cart.
func (c *CartStore) ClearCart() {
	c.ClearAs("")
}

// ClearAs empties the cart, tagging the change with origin.
func (c *CartStore) ClearAs(origin string) {
	c.commit("cleared", origin, func([]domain.CartItem) ([]domain.CartItem, bool) {
		return []domain.CartItem{}, true
	})
}

// Replace sets the whole cart, recomputing totals. Used when server state
// becomes authoritative.
func (c *CartStore) Replace(items []domain.CartItem) {
	c.ReplaceAs("", items)
}

// ReplaceAs is Replace with the change tagged with origin.
func (c *CartStore) ReplaceAs(origin string, items []domain.CartItem) {
	replacement := cloneItems(items)
	c.commit("replaced", origin, func([]domain.CartItem) ([]domain.CartItem, bool) {
		return replacement, true
	})
}

// LoadCart replaces in-memory state with the persisted snapshot, if any.
// Pending writes are flushed first, and the snapshot is discarded if the
// cart changed while it was being read.
func (c *CartStore) LoadCart(ctx context.Context) {
	if c.storage == nil {
		return
	}
	if err := c.writes.Flush(ctx); err != nil {
		c.log.WithError(err).Warn("cart load: waiting for pending writes")
		return
	}

	c.mu.Lock()
	startGen := c.gen
	c.mu.Unlock()

	var saved domain.Cart
	ok, err := kv.LoadJSON(ctx, c.storage, CartKey, &saved)
	if err != nil {
		c.log.WithError(err).Warn("failed to load cart")
		return
	}
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != startGen {
		c.log.Debug("cart changed during load; keeping in-memory state")
		return
	}
	c.items = domain.NewCart(saved.Items).Items
	c.gen++
}

// Snapshot returns a copy of the cart with totals derived from its items.
func (c *CartStore) Snapshot() domain.Cart {
	return domain.NewCart(c.Items())
}

// Items returns a copy of the cart lines in insertion order.
func (c *CartStore) Items() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items)
}

// Item returns the line with itemID.
func (c *CartStore) Item(itemID string) (domain.CartItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.ID == itemID {
			return cloneItem(item), true
		}
	}
	return domain.CartItem{}, false
}

// ItemCount returns the total quantity across lines.
func (c *CartStore) ItemCount() int {
	return c.Snapshot().TotalItems
}

// TotalPrice returns the sum of price times quantity across lines.
func (c *CartStore) TotalPrice() float64 {
	return c.Snapshot().TotalPrice
}

// SetChangeCallback registers fn to receive the cart lines after every
// mutation. Only one callback registered this way is active at a time:
// registering again replaces it, and nil removes it. Subscribers on the bus
// are unaffected.
func (c *CartStore) SetChangeCallback(fn func([]domain.CartItem)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.callbackUnsub != nil {
		c.callbackUnsub()
		c.callbackUnsub = nil
	}
	if fn == nil {
		return
	}
	c.callbackUnsub = c.bus.Subscribe(func(ch events.Change) {
		if ch.Resource == domain.ResourceCart {
			fn(ch.Cart)
		}
	})
}

// Flush waits for pending persistence writes.
func (c *CartStore) Flush(ctx context.Context) error {
	return c.writes.Flush(ctx)
}

// commit applies mutate to a private copy of the items. When mutate reports
// a change, the copy becomes current, a write is queued and the change is
// published.
func (c *CartStore) commit(op, origin string, mutate func([]domain.CartItem) ([]domain.CartItem, bool)) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	next, changed := mutate(cloneItems(c.items))
	if !changed {
		c.mu.Unlock()
		return
	}
	if next == nil {
		next = []domain.CartItem{}
	}
	c.items = next
	c.gen++
	published := cloneItems(next)
	c.mu.Unlock()

	c.writes.Submit(c.persist)
	c.bus.Publish(events.Change{Resource: domain.ResourceCart, Op: op, Origin: origin, Cart: published})
}

// persist writes the state current at the time it runs, so a superseded
// write can never land after a newer one.
func (c *CartStore) persist() {
	if c.storage == nil {
		return
	}
	snapshot := c.Snapshot()
	if err := kv.SaveJSON(context.Background(), c.storage, CartKey, snapshot); err != nil {
		c.log.WithError(err).Warn("failed to persist cart")
	}
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, cloneItem(item))
	}
	return out
}

func cloneItem(item domain.CartItem) domain.CartItem {
	if item.SelectedVariants != nil {
		selections := make(map[string]string, len(item.SelectedVariants))
		for k, v := range item.SelectedVariants {
			selections[k] = v
		}
		item.SelectedVariants = selections
	}
	return item
}
