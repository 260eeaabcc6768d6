package store

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/kv"
	"github.com/lherron/cartsync/internal/queue"
)

// WishlistStore handles the local wishlist: product snapshots, unique by
// product id, in insertion order.
type WishlistStore struct {
	storage kv.Storage
	bus     *events.Bus
	log     logrus.FieldLogger
	writes  *queue.Queue

	// pubMu orders commits end to end; handlers must not mutate the wishlist.
	pubMu sync.Mutex

	mu    sync.Mutex
	items []domain.Product
	gen   uint64

	cbMu          sync.Mutex
	callbackUnsub func()
}

// Add appends product unless a product with the same id is present.
func (w *WishlistStore) Add(product domain.Product) error {
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	w.commit("item_added", "", func(items []domain.Product) ([]domain.Product, bool) {
		for _, p := range items {
			if p.ID == product.ID {
				return items, false
			}
		}
		return append(items, product), true
	})
	return nil
}

// Remove drops the product with productID. Unknown ids are ignored.
func (w *WishlistStore) Remove(productID string) {
	w.commit("item_removed", "", func(items []domain.Product) ([]domain.Product, bool) {
		for i, p := range items {
			if p.ID == productID {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
}

// Contains reports whether productID is in the wishlist.
func (w *WishlistStore) Contains(productID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.items {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// Clear empties the wishlist.
func (w *WishlistStore) Clear() {
	w.ClearAs("")
}

// ClearAs empties the wishlist, tagging the change with origin.
func (w *WishlistStore) ClearAs(origin string) {
	w.commit("cleared", origin, func([]domain.Product) ([]domain.Product, bool) {
		return []domain.Product{}, true
	})
}

// Replace sets the whole wishlist. Duplicate ids keep their first
// occurrence.
func (w *WishlistStore) Replace(products []domain.Product) {
	w.ReplaceAs("", products)
}

// ReplaceAs is Replace with the change tagged with origin.
func (w *WishlistStore) ReplaceAs(origin string, products []domain.Product) {
	replacement := dedupeProducts(products)
	w.commit("replaced", origin, func([]domain.Product) ([]domain.Product, bool) {
		return replacement, true
	})
}

// Load replaces in-memory state with the persisted snapshot, if any, unless
// the wishlist changed while the snapshot was being read.
func (w *WishlistStore) Load(ctx context.Context) {
	if w.storage == nil {
		return
	}
	if err := w.writes.Flush(ctx); err != nil {
		w.log.WithError(err).Warn("wishlist load: waiting for pending writes")
		return
	}

	w.mu.Lock()
	startGen := w.gen
	w.mu.Unlock()

	var saved []domain.Product
	ok, err := kv.LoadJSON(ctx, w.storage, WishlistKey, &saved)
	if err != nil {
		w.log.WithError(err).Warn("failed to load wishlist")
		return
	}
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != startGen {
		w.log.Debug("wishlist changed during load; keeping in-memory state")
		return
	}
	w.items = dedupeProducts(saved)
	w.gen++
}

// Items returns a copy of the wishlist in insertion order.
func (w *WishlistStore) Items() []domain.Product {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Product{}, w.items...)
}

// Len returns the number of products in the wishlist.
func (w *WishlistStore) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// SetChangeCallback registers fn to receive the wishlist after every
// mutation, replacing any callback registered earlier through this method.
func (w *WishlistStore) SetChangeCallback(fn func([]domain.Product)) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	if w.callbackUnsub != nil {
		w.callbackUnsub()
		w.callbackUnsub = nil
	}
	if fn == nil {
		return
	}
	w.callbackUnsub = w.bus.Subscribe(func(ch events.Change) {
		if ch.Resource == domain.ResourceWishlist {
			fn(ch.Wishlist)
		}
	})
}

// Flush waits for pending persistence writes.
func (w *WishlistStore) Flush(ctx context.Context) error {
	return w.writes.Flush(ctx)
}

func (w *WishlistStore) commit(op, origin string, mutate func([]domain.Product) ([]domain.Product, bool)) {
	w.pubMu.Lock()
	defer w.pubMu.Unlock()

	w.mu.Lock()
	next, changed := mutate(append([]domain.Product{}, w.items...))
	if !changed {
		w.mu.Unlock()
		return
	}
	if next == nil {
		next = []domain.Product{}
	}
	w.items = next
	w.gen++
	published := append([]domain.Product{}, next...)
	w.mu.Unlock()

	w.writes.Submit(w.persist)
	w.bus.Publish(events.Change{Resource: domain.ResourceWishlist, Op: op, Origin: origin, Wishlist: published})
}

func (w *WishlistStore) persist() {
	if w.storage == nil {
		return
	}
	if err := kv.SaveJSON(context.Background(), w.storage, WishlistKey, w.Items()); err != nil {
		w.log.WithError(err).Warn("failed to persist wishlist")
	}
}

func dedupeProducts(products []domain.Product) []domain.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
