package session

import (
	"crypto/rand"
	"encoding/base64"

	"agora/cmd/security/token"
)

// hashToken is the digest under which token values are stored and looked up.
func hashToken(plain string) string {
	return token.HashTokenHex(plain) // 64 hex chars
}

// newActionToken generates an opaque one-shot token for password-reset and
// email-verification flows. Only the hash is ever persisted.
func newActionToken(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)

	return plain, hashToken(plain), nil
}
