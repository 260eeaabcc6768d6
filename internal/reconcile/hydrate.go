package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lherron/cartsync/internal/domain"
)

// lookupConcurrency bounds parallel product lookups during hydration.
const lookupConcurrency = 4

func newGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}

// hydrate replaces the local collections with the remote ones. Remote state
// carries product ids only, so each product is looked up in the catalog;
// a product that cannot be found is kept as a bare placeholder.
func (c *Controller) hydrate(ctx context.Context, cart domain.CartPayload, wishlist domain.WishlistPayload) {
	var ids []string
	seen := make(map[string]struct{})
	for _, line := range cart.Items {
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}
	for _, id := range wishlist.ProductIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	products := c.lookupProducts(ctx, ids)

	now := c.now()
	var items []domain.CartItem
	index := make(map[string]int)
	for _, line := range cart.Items {
		if err := domain.ValidateCartLine(line); err != nil {
			c.log.WithError(err).WithField("product_id", line.ProductID).Warn("skipping invalid remote cart line")
			continue
		}
		selections := domain.ParseVariantKey(line.VariantKey)
		id := domain.CartItemID(line.ProductID, selections)
		if i, ok := index[id]; ok {
			items[i].Quantity += line.Quantity
			continue
		}
		index[id] = len(items)
		items = append(items, domain.CartItem{
			ID:               id,
			Product:          products[line.ProductID],
			Quantity:         line.Quantity,
			SelectedVariants: selections,
			DateAdded:        now,
		})
	}

	wishlistProducts := make([]domain.Product, 0, len(wishlist.ProductIDs))
	for _, id := range wishlist.ProductIDs {
		if id == "" {
			continue
		}
		wishlistProducts = append(wishlistProducts, products[id])
	}

	c.store.Cart.ReplaceAs(c.origin, items)
	c.store.Wishlist.ReplaceAs(c.origin, wishlistProducts)
}

func (c *Controller) lookupProducts(ctx context.Context, ids []string) map[string]domain.Product {
	var mu sync.Mutex
	out := make(map[string]domain.Product, len(ids))

	var g errgroup.Group
	g.SetLimit(lookupConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			p, err := c.remote.Product(ctx, id)
			if err != nil || p.ID == "" {
				c.log.WithError(err).WithField("product_id", id).Warn("product lookup failed; using placeholder")
				p = domain.Product{ID: id, Name: id}
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
