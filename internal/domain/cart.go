package domain

import (
	"math"
	"sort"
	"strings"
)

const (
	variantPairSep  = "|"
	variantValueSep = ":"
	itemIDSep       = "_"
)

// VariantKey canonicalizes a variant selection: names sorted
// lexicographically, each pair written as name:value, pairs joined with "|".
// An empty selection yields "".
func VariantKey(selections map[string]string) string {
	if len(selections) == 0 {
		return ""
	}
	names := make([]string, 0, len(selections))
	for name := range selections {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+variantValueSep+selections[name])
	}
	return strings.Join(pairs, variantPairSep)
}

// ParseVariantKey is the inverse of VariantKey. Malformed pairs (no ":")
// are skipped.
func ParseVariantKey(key string) map[string]string {
	selections := map[string]string{}
	if key == "" {
		return selections
	}
	for _, pair := range strings.Split(key, variantPairSep) {
		name, value, ok := strings.Cut(pair, variantValueSep)
		if !ok || name == "" {
			continue
		}
		selections[name] = value
	}
	return selections
}

// CartItemID derives the merge key for a product and selection.
func CartItemID(productID string, selections map[string]string) string {
	return productID + itemIDSep + VariantKey(selections)
}

// ComputeTotals sums quantities and price*quantity over items. The price
// total is the exact floating point sum; round only when displaying it.
func ComputeTotals(items []CartItem) (totalItems int, totalPrice float64) {
	for _, item := range items {
		totalItems += item.Quantity
		totalPrice += item.Product.Price * float64(item.Quantity)
	}
	return totalItems, totalPrice
}

// ApplyDiscount returns base reduced by percent, rounded to cents.
func ApplyDiscount(base float64, percent int) float64 {
	return roundCents(base * (1 - float64(percent)/100))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
