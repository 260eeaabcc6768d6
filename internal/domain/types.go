package domain

import (
	"time"
)

// ResourceKind names one of the two synchronized collections.
type ResourceKind string

const (
	ResourceCart     ResourceKind = "cart"
	ResourceWishlist ResourceKind = "wishlist"
)

// Category is the catalog category a product belongs to
type Category struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Slug     string  `json:"slug" yaml:"slug"`
	ImageURL *string `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	ParentID *string `json:"parentId,omitempty" yaml:"parent_id,omitempty"`
}

// ProductVariant is a selectable product dimension (size, color, ...)
type ProductVariant struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
}

// Product is the snapshot stored in carts and wishlists.
type Product struct {
	ID              string           `json:"id" yaml:"id"`
	Slug            string           `json:"slug" yaml:"slug"`
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	Category        Category         `json:"category" yaml:"category"`
	Price           float64          `json:"price" yaml:"price"`
	OriginalPrice   *float64         `json:"originalPrice,omitempty" yaml:"original_price,omitempty"`
	DiscountPercent *int             `json:"discountPercent,omitempty" yaml:"discount_percent,omitempty"`
	IsFlashSale     bool             `json:"isFlashSale" yaml:"is_flash_sale"`
	Rating          float64          `json:"rating" yaml:"rating"`
	ImageURL        *string          `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	Images          []string         `json:"images,omitempty" yaml:"images,omitempty"`
	Variants        []ProductVariant `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// CartItem is one cart line. ID is derived from the product id and the
// canonical variant key, so equal selections always share a line.
type CartItem struct {
	ID               string            `json:"id" yaml:"id"`
	Product          Product           `json:"product" yaml:"product"`
	Quantity         int               `json:"quantity" yaml:"quantity"`
	SelectedVariants map[string]string `json:"selectedVariants" yaml:"selected_variants"`
	DateAdded        time.Time         `json:"dateAdded" yaml:"date_added"`
}

// ProductID returns the id of the product on this line.
func (i CartItem) ProductID() string {
	return i.Product.ID
}

// VariantKey returns the canonical encoding of the line's selections.
func (i CartItem) VariantKey() string {
	return VariantKey(i.SelectedVariants)
}

// Cart is the persisted cart snapshot. Totals are derived from Items and are
// only ever produced by ComputeTotals.
type Cart struct {
	Items      []CartItem `json:"items" yaml:"items"`
	TotalItems int        `json:"totalItems" yaml:"total_items"`
	TotalPrice float64    `json:"totalPrice" yaml:"total_price"`
}

// NewCart builds a cart from items, recomputing totals.
func NewCart(items []CartItem) Cart {
	if items == nil {
		items = []CartItem{}
	}
	totalItems, totalPrice := ComputeTotals(items)
	return Cart{Items: items, TotalItems: totalItems, TotalPrice: totalPrice}
}

// Identity is an authenticated user handle, or the zero value for a guest.
type Identity struct {
	UserID string `json:"userId,omitempty" yaml:"user_id,omitempty"`
}

// Guest is the absent identity.
var Guest = Identity{}

// User returns the identity for the given user id.
func User(id string) Identity {
	return Identity{UserID: id}
}

// Present reports whether a user is signed in.
func (i Identity) Present() bool {
	return i.UserID != ""
}

func (i Identity) String() string {
	if !i.Present() {
		return "guest"
	}
	return i.UserID
}

// CartLine is the wire form of a cart item.
type CartLine struct {
	ProductID  string `json:"productId" yaml:"product_id"`
	Quantity   int    `json:"quantity" yaml:"quantity"`
	VariantKey string `json:"variantKey" yaml:"variant_key"`
}

// CartPayload is the body of GET/PUT /users/{id}/cart.
type CartPayload struct {
	Items []CartLine `json:"items" yaml:"items"`
}

// WishlistPayload is the body of GET/PUT /users/{id}/wishlist.
type WishlistPayload struct {
	ProductIDs []string `json:"productIds" yaml:"product_ids"`
}

// CartLines converts local cart items to their wire form, preserving order.
func CartLines(items []CartItem) []CartLine {
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, CartLine{
			ProductID:  item.Product.ID,
			Quantity:   item.Quantity,
			VariantKey: item.VariantKey(),
		})
	}
	return lines
}

// ProductIDs returns the ids of the given products, preserving order.
func ProductIDs(products []Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

// Event is a row of the local event log
type Event struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       *string   `json:"user_id,omitempty"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty"`
	EventType    string    `json:"event_type"`
	Payload      *string   `json:"payload,omitempty"` // JSON
}
