package session

import (
	"net"
	"time"
)

// Invalidated is the sentinel written over a session's token hash columns on
// revocation. It is terminal: hashes are lowercase hex, so no live token can
// ever hash to it, and a sentinel'd column never matches a lookup again.
const Invalidated = "INVALIDATED"

// TokenPair is the result of issuing or rotating a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// Metadata describes the client that owns a session. Write-once at creation.
type Metadata struct {
	DeviceInfo string
	IPAddress  net.IP
	UserAgent  string
}

// Session mirrors the agora.sessions row.
type Session struct {
	ID     string
	UserID string

	// AccessTokenHash and RefreshTokenHash are hex digests of the live
	// token values, or Invalidated once the session is terminated.
	AccessTokenHash  string
	RefreshTokenHash string

	// PrevRefreshTokenHash holds the hash rotated away in the most recent
	// rotation. A lookup hit here means a rotated token was replayed.
	PrevRefreshTokenHash *string

	// TokenVersion increments on every rotation and is compared-and-swapped
	// so that concurrent rotations of the same session cannot both win.
	TokenVersion int64

	IssuedAt         time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	LastUsedAt       *time.Time

	RevokedAt        *time.Time
	RevocationReason *string

	IsOnline bool

	DeviceInfo *string
	IPAddress  net.IP
	UserAgent  *string

	PasswordResetHash      *string
	PasswordResetExpiresAt *time.Time
	EmailVerifyHash        *string
	EmailVerifyExpiresAt   *time.Time
}

// Revoked reports whether the session has been terminated.
func (s Session) Revoked() bool {
	return s.RevokedAt != nil ||
		s.AccessTokenHash == Invalidated ||
		s.RefreshTokenHash == Invalidated
}

// Expired reports whether the session's refresh lifetime has passed. An
// expired session is dead even if its access token has not technically
// expired yet.
func (s Session) Expired(now time.Time) bool {
	return !s.RefreshExpiresAt.After(now)
}

// Live reports whether the session may still authenticate requests.
func (s Session) Live(now time.Time) bool {
	return !s.Revoked() && !s.Expired(now)
}
