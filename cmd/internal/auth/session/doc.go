// Package session implements Agora's token-based session architecture.
//
// A session binds a user to a currently valid access/refresh token pair
// plus provenance metadata. Both tokens are signed JWTs (HS256) with
// separate secrets and separate lifetimes; the session row in Postgres is
// the authority on liveness, so revocation takes effect on the very next
// request regardless of a token's embedded expiry.
//
// Token values are stored hashed (HMAC-SHA256 when AGORA_TOKEN_HMAC_KEY is
// set; otherwise SHA-256 for dev/back-compat) and looked up by exact hash
// match. Rotation overwrites the pair in place under a token-version
// compare-and-swap, keeping the previous refresh hash for one generation so
// replay of a rotated token is detected and revokes every session the user
// holds.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
