package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks pw against c.Policy. Lengths are counted in runes.
func (c Config) Validate(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < c.Policy.MinLength:
		return &PolicyError{Rule: ErrPasswordTooShort, Limit: max(c.Policy.MinLength, 1)}
	case n > c.Policy.MaxLength:
		return &PolicyError{Rule: ErrPasswordTooLong, Limit: c.Policy.MaxLength}
	case c.Policy.RejectVeryWeak && trivial(pw):
		return &PolicyError{Rule: ErrWeakPassword}
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"123456789":   {},
	"12345678":    {},
	"qwerty":      {},
	"qwerty123":   {},
	"letmein":     {},
	"iloveyou":    {},
	"11111111":    {},
}

// trivial flags a repeated single rune, a short all-digit PIN, or a
// well-known password. It is not a strength estimator.
func trivial(pw string) bool {
	s := strings.TrimSpace(pw)
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated, digits := true, true
	for _, r := range s {
		repeated = repeated && r == first
		digits = digits && unicode.IsDigit(r)
	}
	return repeated || (digits && utf8.RuneCountInString(s) < 12)
}
