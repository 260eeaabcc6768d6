package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
)

// UserStore handles the per-user cart and wishlist resources. Writes are
// full replaces applied in one transaction.
type UserStore struct {
	store *Store
}

// Wishlist returns the product ids saved for userID in saved order. A user
// with nothing saved has an empty wishlist.
func (u *UserStore) Wishlist(ctx context.Context, userID string) (domain.WishlistPayload, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.WishlistPayload{}, err
	}
	rows, err := u.store.db.QueryContext(ctx, `
		SELECT product_id FROM user_wishlist_items WHERE user_id = ? ORDER BY position
	`, userID)
	if err != nil {
		return domain.WishlistPayload{}, fmt.Errorf("failed to query wishlist: %w", err)
	}
	defer rows.Close()

	out := domain.WishlistPayload{ProductIDs: []string{}}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.WishlistPayload{}, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		out.ProductIDs = append(out.ProductIDs, id)
	}
	return out, rows.Err()
}

// ReplaceWishlist overwrites the wishlist of userID. Empty and repeated ids
// are dropped.
func (u *UserStore) ReplaceWishlist(ctx context.Context, userID string, payload domain.WishlistPayload) (domain.WishlistPayload, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.WishlistPayload{}, err
	}
	ids := make([]string, 0, len(payload.ProductIDs))
	seen := make(map[string]struct{}, len(payload.ProductIDs))
	for _, id := range payload.ProductIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	err := u.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_wishlist_items WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear wishlist: %w", err)
		}
		for i, id := range ids {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_wishlist_items (id, user_id, product_id, position) VALUES (?, ?, ?, ?)
			`, uuid.NewString(), userID, id, i)
			if err != nil {
				return fmt.Errorf("failed to insert wishlist item: %w", err)
			}
		}
		return ew.Log(ctx, tx, userID, "user_wishlist", userID, "user_wishlist.replaced", map[string]interface{}{
			"product_ids": ids,
		})
	})
	if err != nil {
		return domain.WishlistPayload{}, err
	}
	return domain.WishlistPayload{ProductIDs: ids}, nil
}

// Cart returns the cart lines saved for userID in saved order.
func (u *UserStore) Cart(ctx context.Context, userID string) (domain.CartPayload, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.CartPayload{}, err
	}
	rows, err := u.store.db.QueryContext(ctx, `
		SELECT product_id, quantity, variant_key FROM user_cart_items WHERE user_id = ? ORDER BY position
	`, userID)
	if err != nil {
		return domain.CartPayload{}, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	out := domain.CartPayload{Items: []domain.CartLine{}}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.VariantKey); err != nil {
			return domain.CartPayload{}, fmt.Errorf("failed to scan cart item: %w", err)
		}
		out.Items = append(out.Items, line)
	}
	return out, rows.Err()
}

// ReplaceCart overwrites the cart of userID. Lines are validated; lines
// sharing a product id and canonical variant key are merged by summing
// quantities.
func (u *UserStore) ReplaceCart(ctx context.Context, userID string, payload domain.CartPayload) (domain.CartPayload, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.CartPayload{}, err
	}
	lines := make([]domain.CartLine, 0, len(payload.Items))
	index := make(map[string]int, len(payload.Items))
	for _, line := range payload.Items {
		if err := domain.ValidateCartLine(line); err != nil {
			return domain.CartPayload{}, err
		}
		line.VariantKey = domain.VariantKey(domain.ParseVariantKey(line.VariantKey))
		key := domain.CartItemID(line.ProductID, domain.ParseVariantKey(line.VariantKey))
		if i, ok := index[key]; ok {
			lines[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(lines)
		lines = append(lines, line)
	}

	err := u.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_cart_items WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		for i, line := range lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_cart_items (id, user_id, product_id, quantity, variant_key, position)
				VALUES (?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), userID, line.ProductID, line.Quantity, line.VariantKey, i)
			if err != nil {
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}
		return ew.Log(ctx, tx, userID, "user_cart", userID, "user_cart.replaced", map[string]interface{}{
			"items": lines,
		})
	})
	if err != nil {
		return domain.CartPayload{}, err
	}
	return domain.CartPayload{Items: lines}, nil
}
