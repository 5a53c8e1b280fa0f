package identity

import (
	"strings"
	"unicode/utf8"
)

// NormalizeEmail performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MaskIdentifier hides all but the first and last character of s, for logs.
// "alice@example.com" -> "a***************m". Returns "" for blank input.
func MaskIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	n := utf8.RuneCountInString(s)
	first, _ := utf8.DecodeRuneInString(s)
	if n <= 2 {
		return string(first) + "*"
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	return string(first) + strings.Repeat("*", n-2) + string(last)
}
