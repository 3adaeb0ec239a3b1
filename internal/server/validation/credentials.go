// Package validation holds the pure credential checks applied at
// registration, password reset and operator password changes.
package validation

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,32}$`)

// IsValidUserName reports whether s is 3 to 32 ASCII letters or digits.
// Underscores, dots, hyphens, spaces and accented letters are rejected.
func IsValidUserName(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return userNamePattern.MatchString(s)
}

// IsStrongPassword reports whether s has at least MinPasswordLength
// characters including an ASCII lowercase letter, an ASCII uppercase letter,
// a digit and a special character. Anything outside [A-Za-z0-9] is special,
// so "ç" or "é" satisfy the special class.
func IsStrongPassword(s string) bool {
	if strings.TrimSpace(s) == "" || utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	return lower && upper && digit && special
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidEmail reports whether s is a bare address such as "joao@email.com".
// Display names ("Joao <joao@email.com>") are rejected.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	return strings.Contains(s[strings.LastIndexByte(s, '@'):], ".")
}
