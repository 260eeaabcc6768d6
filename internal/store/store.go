// Package store holds the local cart and wishlist: the in-memory state the
// UI reads, written through to key-value storage after every mutation and
// announced on the change bus.
package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/kv"
	"github.com/lherron/cartsync/internal/logging"
	"github.com/lherron/cartsync/internal/queue"
)

// Storage keys, relative to the storage namespace.
const (
	CartKey     = "cart"
	WishlistKey = "wishlist"
)

// Options configures a Store.
type Options struct {
	Storage kv.Storage
	Bus     *events.Bus        // optional; a private bus is created when nil
	Log     logrus.FieldLogger // optional
	Now     func() time.Time   // optional; used for CartItem.DateAdded
}

// Store is the root store that provides access to the cart and wishlist.
// One Store is owned per app session.
type Store struct {
	bus *events.Bus

	Cart     *CartStore
	Wishlist *WishlistStore
}

// New creates a Store with empty state. Call Load to restore persisted
// snapshots.
func New(opts Options) *Store {
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrDiscard(opts.Log)

	s := &Store{bus: opts.Bus}
	s.Cart = &CartStore{
		storage: opts.Storage,
		bus:     opts.Bus,
		log:     log.WithField("resource", "cart"),
		now:     opts.Now,
		writes:  queue.New(0),
		items:   []domain.CartItem{},
	}
	s.Wishlist = &WishlistStore{
		storage: opts.Storage,
		bus:     opts.Bus,
		log:     log.WithField("resource", "wishlist"),
		writes:  queue.New(0),
		items:   []domain.Product{},
	}
	return s
}

// Bus returns the change bus both stores publish on.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// Load restores both collections from storage.
func (s *Store) Load(ctx context.Context) {
	s.Cart.LoadCart(ctx)
	s.Wishlist.Load(ctx)
}

// Clear empties both collections.
func (s *Store) Clear() {
	s.ClearAs("")
}

// ClearAs empties both collections, tagging the changes with origin.
func (s *Store) ClearAs(origin string) {
	s.Cart.ClearAs(origin)
	s.Wishlist.ClearAs(origin)
}

// Empty reports whether both collections are empty.
func (s *Store) Empty() bool {
	return len(s.Cart.Items()) == 0 && len(s.Wishlist.Items()) == 0
}

// Flush waits for pending persistence writes of both collections.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.Cart.Flush(ctx); err != nil {
		return err
	}
	return s.Wishlist.Flush(ctx)
}
