package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/slug"
)

// CatalogStore handles products and categories.
type CatalogStore struct {
	store *Store
	sale  *FlashSale
}

// CategoryParams contains parameters for creating a category.
type CategoryParams struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ImageURL *string `json:"imageUrl,omitempty"`
	ParentID *string `json:"parentId,omitempty"`
}

// ProductParams contains parameters for creating a product.
type ProductParams struct {
	Name            string                  `json:"name"`
	Slug            string                  `json:"slug"`
	CategoryID      string                  `json:"categoryId"`
	Description     string                  `json:"description,omitempty"`
	Price           float64                 `json:"price"`
	OriginalPrice   *float64                `json:"originalPrice,omitempty"`
	DiscountPercent *int                    `json:"discountPercent,omitempty"`
	Rating          float64                 `json:"rating"`
	ImageURL        *string                 `json:"imageUrl,omitempty"`
	Images          []string                `json:"images,omitempty"`
	Variants        []domain.ProductVariant `json:"variants,omitempty"`
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	// Category matches products in the category or its direct
	// subcategories; Subcategory matches one category exactly.
	Category    string
	Subcategory string
	Search      string
	MinPrice *float64
	MaxPrice *float64
	Sort     string // "price_low", "price_high" or "" for creation order
	Page     int
	PageSize int
}

// Page is one page of a product listing.
type Page struct {
	Items    []domain.Product `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Sale returns the configured flash sale, or nil.
func (c *CatalogStore) Sale() *FlashSale {
	return c.sale
}

// CreateCategory inserts a category and returns it.
func (c *CatalogStore) CreateCategory(ctx context.Context, params CategoryParams) (domain.Category, error) {
	if strings.TrimSpace(params.Name) == "" {
		return domain.Category{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	catSlug, err := resolveSlug(params.Name, params.Slug)
	if err != nil {
		return domain.Category{}, err
	}

	cat := domain.Category{ID: uuid.NewString(), Name: params.Name, Slug: catSlug, ImageURL: params.ImageURL, ParentID: params.ParentID}
	err = c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkParent(ctx, tx, cat.ID, params.ParentID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, slug, image_url, parent_id) VALUES (?, ?, ?, ?, ?)
		`, cat.ID, cat.Name, cat.Slug, cat.ImageURL, params.ParentID)
		if uniqueViolation(err) {
			return &domain.ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is already in use", cat.Slug)}
		}
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		return ew.Log(ctx, tx, "", "category", cat.ID, "category.created", map[string]interface{}{
			"slug": cat.Slug,
		})
	})
	if err != nil {
		return domain.Category{}, err
	}
	return cat, nil
}

// CreateProduct inserts a product and returns it as stored (without the
// flash-sale overlay).
func (c *CatalogStore) CreateProduct(ctx context.Context, params ProductParams) (domain.Product, error) {
	row, err := prepareProduct(params)
	if err != nil {
		return domain.Product{}, err
	}

	id := uuid.NewString()
	err = c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkCategory(ctx, tx, params.CategoryID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, slug, description, category_id, price, original_price,
			                      discount_percent, rating, image_url, images, variants)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, row.Name, row.Slug, row.Description, row.CategoryID, row.Price,
			row.OriginalPrice, row.DiscountPercent, row.Rating, row.ImageURL,
			row.images, row.variants)
		if uniqueViolation(err) {
			return &domain.ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is already in use", row.Slug)}
		}
		if err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}

		return ew.Log(ctx, tx, "", "product", id, "product.created", map[string]interface{}{
			"slug":  row.Slug,
			"price": row.Price,
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return c.product(ctx, id, false)
}

// UpdateProduct replaces every field of the product with id and returns it
// as stored.
func (c *CatalogStore) UpdateProduct(ctx context.Context, id string, params ProductParams) (domain.Product, error) {
	row, err := prepareProduct(params)
	if err != nil {
		return domain.Product{}, err
	}

	err = c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkCategory(ctx, tx, params.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET name = ?, slug = ?, description = ?, category_id = ?, price = ?,
			       original_price = ?, discount_percent = ?, rating = ?, image_url = ?,
			       images = ?, variants = ?
			WHERE id = ?
		`, row.Name, row.Slug, row.Description, row.CategoryID, row.Price,
			row.OriginalPrice, row.DiscountPercent, row.Rating, row.ImageURL,
			row.images, row.variants, id)
		if uniqueViolation(err) {
			return &domain.ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is already in use", row.Slug)}
		}
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		if err := requireAffected(res, "product", id); err != nil {
			return err
		}
		return ew.Log(ctx, tx, "", "product", id, "product.updated", map[string]interface{}{
			"slug":  row.Slug,
			"price": row.Price,
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return c.product(ctx, id, false)
}

// ImagesParams is a partial update of a product's images. Nil fields are
// left unchanged.
type ImagesParams struct {
	ImageURL *string  `json:"imageUrl,omitempty"`
	Images   []string `json:"images,omitempty"`
}

// UpdateProductImages applies a partial images update to the product with id.
func (c *CatalogStore) UpdateProductImages(ctx context.Context, id string, params ImagesParams) error {
	return c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check product: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("product %q: %w", id, ErrNotFound)
		}
		if params.ImageURL != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET image_url = ? WHERE id = ?`, *params.ImageURL, id); err != nil {
				return fmt.Errorf("failed to update image url: %w", err)
			}
		}
		if params.Images != nil {
			images, err := json.Marshal(params.Images)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE products SET images = ? WHERE id = ?`, string(images), id); err != nil {
				return fmt.Errorf("failed to update images: %w", err)
			}
		}
		return ew.Log(ctx, tx, "", "product", id, "product.images_updated", map[string]interface{}{
			"image_url_set": params.ImageURL != nil,
			"images":        len(params.Images),
		})
	})
}

// DeleteProduct removes the product with id. User carts and wishlists keep
// referencing it; clients hydrate unknown ids as placeholders.
func (c *CatalogStore) DeleteProduct(ctx context.Context, id string) error {
	return c.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		if err := requireAffected(res, "product", id); err != nil {
			return err
		}
		return ew.Log(ctx, tx, "", "product", id, "product.deleted", nil)
	})
}

// Product returns the product with id, with the flash-sale overlay applied.
func (c *CatalogStore) Product(ctx context.Context, id string) (domain.Product, error) {
	return c.product(ctx, id, true)
}

func (c *CatalogStore) product(ctx context.Context, id string, withSale bool) (domain.Product, error) {
	row := c.store.db.QueryRowContext(ctx, productSelect+` WHERE p.id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, err
	}
	if withSale {
		p = c.sale.Apply(p, c.store.now())
	}
	return p, nil
}

// ListProducts returns one page of products matching f, with the flash-sale
// overlay applied.
func (c *CatalogStore) ListProducts(ctx context.Context, f ProductFilter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	var where []string
	var args []interface{}
	if f.Category != "" {
		where = append(where, "(c.slug = ? OR c.parent_id = (SELECT id FROM categories WHERE slug = ?))")
		args = append(args, f.Category, f.Category)
	}
	if f.Subcategory != "" {
		where = append(where, "c.slug = ?")
		args = append(args, f.Subcategory)
	}
	if f.Search != "" {
		where = append(where, "p.name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.MinPrice != nil {
		where = append(where, "p.price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "p.price <= ?")
		args = append(args, *f.MaxPrice)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id` + clause
	if err := c.store.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count products: %w", err)
	}

	order := " ORDER BY p.created_at, p.rowid"
	switch f.Sort {
	case "price_low":
		order = " ORDER BY p.price, p.rowid"
	case "price_high":
		order = " ORDER BY p.price DESC, p.rowid"
	}

	query := productSelect + clause + order + ` LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	now := c.store.now()
	items := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, c.sale.Apply(p, now))
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("error iterating products: %w", err)
	}
	return Page{Items: items, Page: f.Page, PageSize: f.PageSize, Total: total}, nil
}

const productSelect = `
	SELECT p.id, p.name, p.slug, p.description, p.price, p.original_price, p.discount_percent,
	       p.rating, p.image_url, p.images, p.variants,
	       c.id, c.name, c.slug, c.image_url
	FROM products p
	JOIN categories c ON c.id = p.category_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var originalPrice sql.NullFloat64
	var discount sql.NullInt64
	var imageURL, catImageURL sql.NullString
	var images, variants string
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &originalPrice, &discount,
		&p.Rating, &imageURL, &images, &variants,
		&p.Category.ID, &p.Category.Name, &p.Category.Slug, &catImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	if originalPrice.Valid {
		v := originalPrice.Float64
		p.OriginalPrice = &v
	}
	if discount.Valid {
		v := int(discount.Int64)
		p.DiscountPercent = &v
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}
	if catImageURL.Valid {
		p.Category.ImageURL = &catImageURL.String
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return p, fmt.Errorf("failed to decode images of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(variants), &p.Variants); err != nil {
		return p, fmt.Errorf("failed to decode variants of %s: %w", p.ID, err)
	}
	if p.ImageURL == nil && len(p.Images) > 0 {
		first := p.Images[0]
		p.ImageURL = &first
	}
	return p, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// resolveSlug validates explicit, or derives a slug from name when explicit
// is empty.
func resolveSlug(name, explicit string) (string, error) {
	if explicit == "" {
		derived, err := slug.FromName(name)
		if err != nil {
			return "", &domain.ValidationError{Field: "slug", Reason: err.Error()}
		}
		return derived, nil
	}
	if err := slug.Validate(explicit); err != nil {
		return "", &domain.ValidationError{Field: "slug", Reason: err.Error()}
	}
	return explicit, nil
}

// productRow is a validated ProductParams with its JSON columns encoded.
type productRow struct {
	ProductParams
	images   string
	variants string
}

func prepareProduct(params ProductParams) (productRow, error) {
	if strings.TrimSpace(params.Name) == "" {
		return productRow{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	productSlug, err := resolveSlug(params.Name, params.Slug)
	if err != nil {
		return productRow{}, err
	}
	params.Slug = productSlug
	if params.Price < 0 {
		return productRow{}, &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	images, err := json.Marshal(nonNilStrings(params.Images))
	if err != nil {
		return productRow{}, err
	}
	variants := params.Variants
	if variants == nil {
		variants = []domain.ProductVariant{}
	}
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return productRow{}, err
	}
	return productRow{ProductParams: params, images: string(images), variants: string(variantsJSON)}, nil
}

func checkCategory(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if exists == 0 {
		return &domain.ValidationError{Field: "categoryId", Reason: fmt.Sprintf("category %q does not exist", id)}
	}
	return nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}

func uniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
