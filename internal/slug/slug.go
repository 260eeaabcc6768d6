// Package slug derives and validates the URL slugs of catalog categories
// and products.
package slug

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxLen is the longest accepted slug in bytes.
const MaxLen = 128

var pattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// FromName derives a slug from a display name: lower-cased, runs of
// anything other than a-z and 0-9 collapsed to one hyphen, trimmed of
// hyphens and cut to MaxLen.
func FromName(name string) (string, error) {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(r)
		default:
			hyphen = true
		}
	}
	s := b.String()
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "-")
	}
	if s == "" {
		return "", fmt.Errorf("cannot derive a slug from %q", name)
	}
	return s, nil
}

// Validate checks s without normalizing it.
func Validate(s string) error {
	if s == "" {
		return fmt.Errorf("slug cannot be empty")
	}
	if len(s) > MaxLen {
		return fmt.Errorf("slug exceeds maximum length of %d bytes", MaxLen)
	}
	if !pattern.MatchString(s) {
		return fmt.Errorf("invalid slug %q: must be lowercase words of [a-z0-9] joined by single hyphens", s)
	}
	return nil
}
