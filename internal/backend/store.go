// Package backend persists the catalog and the per-user cart and wishlist
// resources served by cartsyncd.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lherron/cartsync/internal/db"
	"github.com/lherron/cartsync/internal/events"
)

// ErrNotFound is returned when a product, category or user resource does not
// exist.
var ErrNotFound = errors.New("not found")

// Store is the root store that provides access to the catalog and user data.
type Store struct {
	db  *db.DB
	now func() time.Time

	Catalog *CatalogStore
	Users   *UserStore
}

// New creates a Store wrapping the given database connection. sale may be
// nil for no flash sale.
func New(database *db.DB, sale *FlashSale) *Store {
	s := &Store{db: database, now: time.Now}
	s.Catalog = &CatalogStore{store: s, sale: sale}
	s.Users = &UserStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}
