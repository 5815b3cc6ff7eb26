// Package identity implements Agora's principal model.
//
// It contains the canonical User record (role, status, email verification),
// normalization rules, Argon2id password hashing, and the persistence
// boundary used by the auth HTTP layer.
//
// This package is intentionally dependency-light and security-first.
// Session state lives in cmd/internal/auth/session; identity only answers
// "who is this principal and may they log in at all".
package identity
