package util

import (
	"net/mail"
	"strings"
)

// ValidEmail reports whether s is a plausible bare email address. Display
// names are rejected: recipient fields hold addresses only.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	// mail.ParseAddress accepts local-only domains; require a dot so typos
	// like "kid@example" are caught before they sit in the outbox forever.
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// NormalizeEmail lowercases and trims an address for comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
