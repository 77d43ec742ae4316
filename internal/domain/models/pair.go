package models

import (
	"fmt"
	"strings"
)

// ParsePair splits "XXX/YYY" into base and quote currency codes.
func ParsePair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || !isCurrencyCode(parts[0]) || !isCurrencyCode(parts[1]) {
		return "", "", fmt.Errorf("invalid pair %q: want XXX/YYY", pair)
	}
	if parts[0] == parts[1] {
		return "", "", fmt.Errorf("invalid pair %q: base equals quote", pair)
	}
	return parts[0], parts[1], nil
}

// IsValidPair reports whether pair is a well-formed currency pair.
func IsValidPair(pair string) bool {
	_, _, err := ParsePair(pair)
	return err == nil
}

// QuoteCurrency returns the quote side of pair, or "" when malformed.
func QuoteCurrency(pair string) string {
	_, q, err := ParsePair(pair)
	if err != nil {
		return ""
	}
	return q
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
