package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateQuantity requires a strictly positive quantity
func ValidateQuantity(quantity int) error {
	if quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}
	return nil
}

// ValidateProduct requires a product id
func ValidateProduct(p Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "product", Reason: "id is required"}
	}
	return nil
}

// ValidateUserID validates a user id used in resource paths
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "user id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(id, "/?#") {
		return &ValidationError{Field: "user id", Reason: "must not contain '/', '?' or '#'"}
	}
	return nil
}

// ValidateCartLine validates a wire cart line
func ValidateCartLine(line CartLine) error {
	if strings.TrimSpace(line.ProductID) == "" {
		return &ValidationError{Field: "productId", Reason: "is required"}
	}
	return ValidateQuantity(line.Quantity)
}

// ValidateVariantKeyParts rejects selections that would not survive a round
// trip through VariantKey: names must be non-empty without '|' or ':', and
// values must not contain '|'.
func ValidateVariantKeyParts(selections map[string]string) error {
	for name, value := range selections {
		if name == "" {
			return &ValidationError{Field: "variant", Reason: "name must not be empty"}
		}
		if strings.ContainsAny(name, variantPairSep+variantValueSep) {
			return &ValidationError{Field: "variant " + name, Reason: "name must not contain '|' or ':'"}
		}
		if strings.Contains(value, variantPairSep) {
			return &ValidationError{Field: "variant " + name, Reason: "value must not contain '|'"}
		}
	}
	return nil
}

// ValidateVariantSelection checks selections against the product's declared
// variants. Products without declared variants accept any selection whose
// key parts are well formed.
func ValidateVariantSelection(p Product, selections map[string]string) error {
	if err := ValidateVariantKeyParts(selections); err != nil {
		return err
	}
	if len(p.Variants) == 0 {
		return nil
	}
	for name, value := range selections {
		found := false
		for _, v := range p.Variants {
			if v.Name != name {
				continue
			}
			for _, allowed := range v.Values {
				if allowed == value {
					found = true
					break
				}
			}
		}
		if !found {
			return &ValidationError{Field: "variant " + name, Reason: fmt.Sprintf("%q is not offered", value)}
		}
	}
	return nil
}
