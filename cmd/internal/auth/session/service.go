package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service implements the high-level session operations for Agora.
//
// It issues sessions (access + refresh pair), authenticates access tokens
// against the store, rotates token pairs in place with reuse detection, and
// performs per-session and per-user revocation.
type Service struct {
	cfg   Config
	codec *Codec
	store Store
}

// NewService constructs a Service with the provided configuration, store, and codec.
func NewService(cfg Config, store Store, codec *Codec) *Service {
	return &Service{cfg: cfg, store: store, codec: codec}
}

// Issue creates a new session for the principal and returns fresh tokens.
//
// Under the single-session policy every prior session for the user is
// invalidated first, so a new login silently replaces the old device.
func (s *Service) Issue(ctx context.Context, now time.Time, p Principal, meta Metadata) (TokenPair, Session, error) {
	pair, accessHash, refreshHash, err := s.signPair(p, now)
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	if s.cfg.SingleSession {
		if _, err := s.store.InvalidateAll(ctx, now, p.UserID, "superseded"); err != nil {
			return TokenPair{}, Session{}, err
		}
	}

	sess, err := s.store.Create(ctx, now, CreateParams{
		UserID:           p.UserID,
		AccessHash:       accessHash,
		RefreshHash:      refreshHash,
		ExpiresAt:        pair.ExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Meta:             meta,
	})
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	return pair, sess, nil
}

// Authenticate resolves a bearer access token to its claims and live session.
//
// The token must verify cryptographically and its hash must resolve to a
// session that is neither revoked nor past its refresh expiry. The session
// row, not the claims, decides liveness.
func (s *Service) Authenticate(ctx context.Context, now time.Time, accessToken string) (Claims, Session, error) {
	claims, err := s.codec.VerifyAccess(accessToken, now)
	if err != nil {
		return Claims{}, Session{}, err
	}

	row, err := s.store.GetByAccessHash(ctx, hashToken(accessToken))
	if err != nil {
		return Claims{}, Session{}, err
	}

	if row.UserID != claims.UserID {
		return Claims{}, Session{}, ErrInvalidToken
	}
	if row.Revoked() {
		return Claims{}, Session{}, ErrSessionRevoked
	}
	if row.Expired(now) {
		return Claims{}, Session{}, ErrSessionExpired
	}

	return claims, row, nil
}

// Rotate exchanges a refresh token for a fresh pair, overwriting the session
// in place.
//
// Security model:
//   - The refresh token must verify under the refresh secret.
//   - A hash hit on a session's previous generation means a rotated token
//     was replayed: every session for the user is revoked and
//     ErrRefreshReuseDetected is returned.
//   - A session past its refresh expiry is marked terminal, not just denied.
//   - The in-place overwrite is guarded by a token-version compare-and-swap,
//     so of two concurrent rotations only one can win; the loser is denied
//     with ErrRotationConflict rather than silently overwriting.
//
// All routine denials satisfy IsRotationDenied; callers translate those into
// a re-authenticate response and reserve failures for real infrastructure
// errors.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshToken string) (TokenPair, Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshToken == "" || len(refreshToken) > 4096 {
		return TokenPair{}, Session{}, ErrSessionNotFound
	}

	claims, err := s.codec.VerifyRefresh(refreshToken, now)
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	refreshHash := hashToken(refreshToken)

	row, err := s.store.GetByRefreshHash(ctx, refreshHash)
	if errors.Is(err, ErrSessionNotFound) {
		return s.handleRefreshMiss(ctx, now, refreshHash)
	}
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	if row.UserID != claims.UserID {
		return TokenPair{}, Session{}, ErrInvalidToken
	}
	if row.Revoked() {
		return TokenPair{}, Session{}, ErrSessionRevoked
	}
	if row.Expired(now) {
		// Treat behind-expiry presentation as compromised: terminal, not ignored.
		_, _ = s.store.Invalidate(ctx, now, row.ID, "expired")
		return TokenPair{}, Session{}, ErrSessionExpired
	}

	pair, accessHash, newRefreshHash, err := s.signPair(claims.Principal(), now)
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	updated, err := s.store.ReplaceTokens(ctx, now, row.ID, row.TokenVersion, ReplaceParams{
		AccessHash:       accessHash,
		RefreshHash:      newRefreshHash,
		ExpiresAt:        pair.ExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	return pair, updated, nil
}

// handleRefreshMiss distinguishes an unknown refresh token from a replayed
// one. A hit on any session's previous generation is a reuse incident: the
// holder of the rotated-away token may be an attacker, so every session for
// the user is revoked.
func (s *Service) handleRefreshMiss(ctx context.Context, now time.Time, refreshHash string) (TokenPair, Session, error) {
	prevRow, err := s.store.GetByPrevRefreshHash(ctx, refreshHash)
	if errors.Is(err, ErrSessionNotFound) {
		return TokenPair{}, Session{}, ErrSessionNotFound
	}
	if err != nil {
		return TokenPair{}, Session{}, err
	}

	if _, err := s.store.InvalidateAll(ctx, now, prevRow.UserID, "reuse_detected"); err != nil {
		return TokenPair{}, Session{}, err
	}
	return TokenPair{}, Session{}, ErrRefreshReuseDetected
}

// RevokeByRefreshToken terminates the session holding this refresh token
// (logout). Reports whether a live session was terminated.
func (s *Service) RevokeByRefreshToken(ctx context.Context, now time.Time, refreshToken string) (bool, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return false, nil
	}
	return s.store.InvalidateByRefreshHash(ctx, now, hashToken(refreshToken), "logout")
}

// RevokeByID terminates a single session by ID (e.g. the sessions UI).
func (s *Service) RevokeByID(ctx context.Context, now time.Time, sessionID string, reason string) (bool, error) {
	return s.store.Invalidate(ctx, now, sessionID, reason)
}

// RevokeAll terminates every live session for a user (logout everywhere,
// password change, suspension). Returns how many sessions were terminated.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) (int64, error) {
	return s.store.InvalidateAll(ctx, now, userID, reason)
}

// RevokeOthers terminates every live session for a user except the one given.
func (s *Service) RevokeOthers(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) (int64, error) {
	return s.store.InvalidateOthers(ctx, now, userID, keepSessionID, reason)
}

// Touch updates last_used_at for a session (best-effort).
func (s *Service) Touch(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.store.List(ctx, userID)
}

// GetByID loads a single session row, for ownership checks before a
// per-session revoke.
func (s *Service) GetByID(ctx context.Context, sessionID string) (Session, error) {
	return s.store.GetByID(ctx, sessionID)
}

// CountOnline reports how many unexpired sessions are currently marked online.
func (s *Service) CountOnline(ctx context.Context, now time.Time) (int64, error) {
	return s.store.CountOnline(ctx, now)
}

// IssuePasswordReset generates a one-shot password-reset token for the user.
// The plaintext goes to the user out of band; only its hash is stored.
func (s *Service) IssuePasswordReset(ctx context.Context, now time.Time, userID string) (plain string, exp time.Time, err error) {
	plain, hash, err := newActionToken(s.cfg.ActionTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}

	exp = now.Add(s.cfg.PasswordResetTTL)
	if err := s.store.SetPasswordReset(ctx, now, userID, hash, exp); err != nil {
		return "", time.Time{}, err
	}
	return plain, exp, nil
}

// ConsumePasswordReset redeems a password-reset token once and returns the
// owning user.
func (s *Service) ConsumePasswordReset(ctx context.Context, now time.Time, plain string) (string, error) {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > 4096 {
		return "", ErrActionTokenInvalid
	}
	return s.store.ConsumePasswordReset(ctx, now, hashToken(plain))
}

// IssueEmailVerification generates a one-shot email-verification token for
// the user.
func (s *Service) IssueEmailVerification(ctx context.Context, now time.Time, userID string) (plain string, exp time.Time, err error) {
	plain, hash, err := newActionToken(s.cfg.ActionTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}

	exp = now.Add(s.cfg.EmailVerifyTTL)
	if err := s.store.SetEmailVerification(ctx, now, userID, hash, exp); err != nil {
		return "", time.Time{}, err
	}
	return plain, exp, nil
}

// ConsumeEmailVerification redeems an email-verification token once and
// returns the owning user.
func (s *Service) ConsumeEmailVerification(ctx context.Context, now time.Time, plain string) (string, error) {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > 4096 {
		return "", ErrActionTokenInvalid
	}
	return s.store.ConsumeEmailVerification(ctx, now, hashToken(plain))
}

func (s *Service) signPair(p Principal, now time.Time) (pair TokenPair, accessHash, refreshHash string, err error) {
	access, accessExp, err := s.codec.SignAccess(p, now)
	if err != nil {
		return TokenPair{}, "", "", err
	}
	refresh, refreshExp, err := s.codec.SignRefresh(p, now)
	if err != nil {
		return TokenPair{}, "", "", err
	}

	pair = TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}
	return pair, hashToken(access), hashToken(refresh), nil
}
