package session

import (
	"context"
	"time"
)

// CreateParams carries everything needed to insert a session row.
// Token hashes are computed by the caller; plaintext never reaches the store.
type CreateParams struct {
	UserID           string
	AccessHash       string
	RefreshHash      string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	Meta             Metadata
}

// ReplaceParams carries the new token pair written during rotation.
type ReplaceParams struct {
	AccessHash       string
	RefreshHash      string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// Store abstracts persistence for session state.
//
// Lookups are exact-match on a token hash; no partial matching. All
// Invalidate* operations are idempotent: invalidating an already-invalidated
// session reports false/0 rather than an error.
type Store interface {
	// Create inserts a new session row and returns it with its generated ID.
	Create(ctx context.Context, now time.Time, p CreateParams) (Session, error)

	// GetByID loads a session row by ID.
	GetByID(ctx context.Context, sessionID string) (Session, error)

	// GetByAccessHash loads the session holding this access token hash.
	GetByAccessHash(ctx context.Context, hash string) (Session, error)

	// GetByRefreshHash loads the session holding this refresh token hash.
	GetByRefreshHash(ctx context.Context, hash string) (Session, error)

	// GetByPrevRefreshHash loads the session whose previous generation held
	// this refresh token hash. A hit means a rotated token was replayed.
	GetByPrevRefreshHash(ctx context.Context, hash string) (Session, error)

	// ReplaceTokens overwrites the session's token pair and expiries in
	// place, retaining the old refresh hash for reuse detection. The write
	// is guarded by a compare-and-swap on expectVersion; losing the swap
	// returns ErrRotationConflict.
	ReplaceTokens(ctx context.Context, now time.Time, sessionID string, expectVersion int64, p ReplaceParams) (Session, error)

	// Touch updates last_used_at for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Invalidate terminates a single session: both token hashes become the
	// sentinel and is_online clears. Reports whether a live row was hit.
	Invalidate(ctx context.Context, now time.Time, sessionID string, reason string) (bool, error)

	// InvalidateByRefreshHash terminates the session holding this refresh
	// token hash. Reports whether a live row was hit.
	InvalidateByRefreshHash(ctx context.Context, now time.Time, hash string, reason string) (bool, error)

	// InvalidateAll terminates every live session for a user and returns
	// how many were hit.
	InvalidateAll(ctx context.Context, now time.Time, userID string, reason string) (int64, error)

	// InvalidateOthers terminates every live session for a user except one,
	// and returns how many were hit.
	InvalidateOthers(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) (int64, error)

	// List returns the user's session rows, newest first, for session
	// management surfaces. Bare action-token carrier rows are excluded.
	List(ctx context.Context, userID string) ([]Session, error)

	// CountOnline reports how many unexpired sessions are currently marked
	// online, for gauge sampling.
	CountOnline(ctx context.Context, now time.Time) (int64, error)

	// SetPasswordReset stores a hashed password-reset token for the user,
	// clearing any outstanding one.
	SetPasswordReset(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error

	// ConsumePasswordReset atomically consumes an unexpired password-reset
	// token and returns the owning user. Unknown, expired, or already
	// consumed hashes return ErrActionTokenInvalid.
	ConsumePasswordReset(ctx context.Context, now time.Time, hash string) (userID string, err error)

	// SetEmailVerification stores a hashed email-verification token for the
	// user, clearing any outstanding one.
	SetEmailVerification(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error

	// ConsumeEmailVerification atomically consumes an unexpired
	// email-verification token and returns the owning user.
	ConsumeEmailVerification(ctx context.Context, now time.Time, hash string) (userID string, err error)
}
