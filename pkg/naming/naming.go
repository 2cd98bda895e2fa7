// Package naming canonicalizes phone numbers so every layer keys on the same
// string. The core treats recipients as opaque; this package is the seam
// where formatting variants collapse before a number reaches it.
package naming

import (
	"regexp"
	"strings"
)

var (
	nonDigit  = regexp.MustCompile(`[^0-9+]`)
	shortCode = regexp.MustCompile(`^\d{3,6}$`)
)

// NormalizeNumber strips formatting characters and canonicalizes a phone
// number: "+1 (555) 123-4567", "555.123.4567", and "15551234567" all map to
// one key. Bare 10-digit NANP numbers gain the +1 prefix; 11-digit numbers
// starting with 1 gain a +. Short codes and anything unrecognizable are
// returned digits-only, unprefixed.
func NormalizeNumber(raw string) string {
	cleaned := nonDigit.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return ""
	}

	// Keep only a leading plus.
	plus := strings.HasPrefix(cleaned, "+")
	cleaned = strings.ReplaceAll(cleaned, "+", "")
	if cleaned == "" {
		return ""
	}
	if plus {
		return "+" + cleaned
	}

	switch {
	case len(cleaned) == 10:
		return "+1" + cleaned
	case len(cleaned) == 11 && strings.HasPrefix(cleaned, "1"):
		return "+" + cleaned
	default:
		return cleaned
	}
}

// IsShortCode reports whether the normalized number is a carrier short code
// (3-6 digits, no country prefix). Short codes never get auto-replies.
func IsShortCode(number string) bool {
	return shortCode.MatchString(number)
}

// SameNumber reports whether two raw numbers normalize to the same key.
func SameNumber(a, b string) bool {
	na, nb := NormalizeNumber(a), NormalizeNumber(b)
	return na != "" && na == nb
}

// MaskNumber hides the middle digits for log output, keeping the country
// prefix and last two digits.
func MaskNumber(number string) string {
	normalized := NormalizeNumber(number)
	if len(normalized) < 6 {
		return "***"
	}
	return normalized[:3] + strings.Repeat("*", len(normalized)-5) + normalized[len(normalized)-2:]
}
