package backend

import (
	"context"
	"fmt"

	"github.com/lherron/cartsync/internal/domain"
)

type seedProduct struct {
	name, slug string
	price      float64
	rating     float64
	variants   []domain.ProductVariant
}

var seedCatalog = []struct {
	name, slug string
	products   []seedProduct
}{
	{"Shoes", "shoes", []seedProduct{
		{"Everyday Sneakers", "everyday-sneakers", 80, 4.6, sizesAndColors("38", "39", "40", "41", "42")},
		{"Leather Boots", "leather-boots", 140, 4.4, sizesAndColors("39", "40", "41", "42")},
		{"Summer Sandals", "summer-sandals", 35, 4.1, nil},
	}},
	{"Clothing", "clothing", []seedProduct{
		{"Linen Shirt", "linen-shirt", 45, 4.3, sizesAndColors("S", "M", "L", "XL")},
		{"Basic T-shirt", "basic-tshirt", 15, 4.0, sizesAndColors("S", "M", "L")},
	}},
	{"Bags", "bags", []seedProduct{
		{"Canvas Tote", "canvas-tote", 25, 4.2, nil},
		{"City Backpack", "city-backpack", 60, 4.7, nil},
	}},
}

func sizesAndColors(sizes ...string) []domain.ProductVariant {
	return []domain.ProductVariant{
		{ID: "size", Name: "size", Values: sizes},
		{ID: "color", Name: "color", Values: []string{"black", "white"}},
	}
}

// Seed fills an empty catalog with demo categories and products. It
// returns the number of products created; a catalog that already has
// categories is left untouched.
func (c *CatalogStore) Seed(ctx context.Context) (int, error) {
	existing, err := c.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, cat := range seedCatalog {
		category, err := c.CreateCategory(ctx, CategoryParams{Name: cat.name, Slug: cat.slug})
		if err != nil {
			return created, fmt.Errorf("seed category %s: %w", cat.slug, err)
		}
		for _, p := range cat.products {
			_, err := c.CreateProduct(ctx, ProductParams{
				Name:       p.name,
				Slug:       p.slug,
				CategoryID: category.ID,
				Price:      p.price,
				Rating:     p.rating,
				Variants:   p.variants,
			})
			if err != nil {
				return created, fmt.Errorf("seed product %s: %w", p.slug, err)
			}
			created++
		}
	}
	return created, nil
}
