package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier canonicalizes a login identifier that may be either an
// email address or a username. Both normalize the same way today; the split
// exists so the rules can diverge without touching callers.
func NormalizeIdentifier(s string) string {
	if strings.Contains(s, "@") {
		return NormalizeEmail(s)
	}
	return NormalizeUsername(s)
}
