package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization for uniqueness
// checks. Trim + lower-case only; stricter rules live in the API validation.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
