package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
)

const categorySelect = `SELECT id, name, slug, image_url, parent_id FROM categories`

// ListCategories returns root categories ordered by name.
func (c *CatalogStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return c.queryCategories(ctx, categorySelect+` WHERE parent_id IS NULL ORDER BY name`)
}

// Subcategories returns the direct children of the category with parentSlug
// ordered by name. An unknown parent has no children.
func (c *CatalogStore) Subcategories(ctx context.Context, parentSlug string) ([]domain.Category, error) {
	return c.queryCategories(ctx, categorySelect+`
		WHERE parent_id = (SELECT id FROM categories WHERE slug = ?) ORDER BY name
	`, parentSlug)
}

// Category returns the category with slug.
func (c *CatalogStore) Category(ctx context.Context, slug string) (domain.Category, error) {
	cat, err := scanCategory(c.store.db.QueryRowContext(ctx, categorySelect+` WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, fmt.Errorf("category %q: %w", slug, ErrNotFound)
	}
	return cat, err
}

// UpdateCategory replaces the fields of the category with slug and returns
// it. The slug itself may change.
func (c *CatalogStore) UpdateCategory(ctx context.Context, slug string, params CategoryParams) (domain.Category, error) {
	if strings.TrimSpace(params.Name) == "" {
		return domain.Category{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	newSlug, err := resolveSlug(params.Name, params.Slug)
	if err != nil {
		return domain.Category{}, err
	}

	var updated domain.Category
	err = c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		current, err := scanCategory(tx.QueryRowContext(ctx, categorySelect+` WHERE slug = ?`, slug))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %q: %w", slug, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := checkParent(ctx, tx, current.ID, params.ParentID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE categories SET name = ?, slug = ?, image_url = ?, parent_id = ? WHERE id = ?
		`, params.Name, newSlug, params.ImageURL, params.ParentID, current.ID)
		if uniqueViolation(err) {
			return &domain.ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is already in use", newSlug)}
		}
		if err != nil {
			return fmt.Errorf("failed to update category: %w", err)
		}

		updated = domain.Category{ID: current.ID, Name: params.Name, Slug: newSlug, ImageURL: params.ImageURL, ParentID: params.ParentID}
		return ew.Log(ctx, tx, "", "category", current.ID, "category.updated", map[string]interface{}{
			"old_slug": slug,
			"slug":     newSlug,
		})
	})
	if err != nil {
		return domain.Category{}, err
	}
	return updated, nil
}

// DeleteCategory removes the category with slug together with its products.
// Its subcategories become root categories.
func (c *CatalogStore) DeleteCategory(ctx context.Context, slug string) error {
	return c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE slug = ?`, slug).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %q: %w", slug, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up category: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE category_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete category products: %w", err)
		}
		products, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}

		return ew.Log(ctx, tx, "", "category", id, "category.deleted", map[string]interface{}{
			"slug":             slug,
			"products_deleted": products,
		})
	})
}

// checkParent validates parentID for the category with id: the parent must
// exist and must not be the category itself or one of its descendants.
func checkParent(ctx context.Context, tx *sql.Tx, id string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	seen := map[string]bool{}
	for cur := *parentID; ; {
		if cur == id {
			return &domain.ValidationError{Field: "parentId", Reason: "would create a cycle"}
		}
		if seen[cur] {
			return nil
		}
		seen[cur] = true

		var next sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT parent_id FROM categories WHERE id = ?`, cur).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			if cur == *parentID {
				return &domain.ValidationError{Field: "parentId", Reason: fmt.Sprintf("category %q does not exist", cur)}
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check parent category: %w", err)
		}
		if !next.Valid {
			return nil
		}
		cur = next.String
	}
}

func (c *CatalogStore) queryCategories(ctx context.Context, query string, args ...interface{}) ([]domain.Category, error) {
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	out := []domain.Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var cat domain.Category
	var imageURL, parentID sql.NullString
	if err := row.Scan(&cat.ID, &cat.Name, &cat.Slug, &imageURL, &parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cat, err
		}
		return cat, fmt.Errorf("failed to scan category: %w", err)
	}
	if imageURL.Valid {
		cat.ImageURL = &imageURL.String
	}
	if parentID.Valid {
		cat.ParentID = &parentID.String
	}
	return cat, nil
}
