package backend

import (
	"time"

	"github.com/lherron/cartsync/internal/domain"
)

// FlashSale is a time-limited discount on selected products, keyed by slug.
type FlashSale struct {
	IsActive                  bool           `json:"isActive"`
	EndTime                   time.Time      `json:"endTime"`
	PerProductDiscountPercent map[string]int `json:"perProductDiscountPercent"`
	Title                     string         `json:"title"`
	Description               string         `json:"description"`
}

// DefaultFlashSale returns the sale served when none is configured: 24 hours
// from now on two footwear products.
func DefaultFlashSale(now time.Time) *FlashSale {
	return &FlashSale{
		IsActive: true,
		EndTime:  now.Add(24 * time.Hour).UTC(),
		PerProductDiscountPercent: map[string]int{
			"everyday-sneakers": 30,
			"leather-boots":     25,
		},
		Title:       "Flash Sale - Limited Time!",
		Description: "Up to 30% off selected items",
	}
}

// Active reports whether the sale applies at now.
func (f *FlashSale) Active(now time.Time) bool {
	return f != nil && f.IsActive && (f.EndTime.IsZero() || now.Before(f.EndTime))
}

// Apply overlays the sale price on p. The discount is taken from the
// original price when p already carries one.
func (f *FlashSale) Apply(p domain.Product, now time.Time) domain.Product {
	if !f.Active(now) {
		return p
	}
	d, ok := f.PerProductDiscountPercent[p.Slug]
	if !ok || d <= 0 {
		return p
	}
	base := p.Price
	if p.OriginalPrice != nil {
		base = *p.OriginalPrice
	}
	p.Price = domain.ApplyDiscount(base, d)
	p.OriginalPrice = &base
	p.DiscountPercent = &d
	p.IsFlashSale = true
	return p
}
