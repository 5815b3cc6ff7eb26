package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func storeNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testCreateParams(userID, suffix string, now time.Time) CreateParams {
	return CreateParams{
		UserID:           userID,
		AccessHash:       hashToken("access-" + suffix),
		RefreshHash:      hashToken("refresh-" + suffix),
		ExpiresAt:        now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(168 * time.Hour),
		Meta:             Metadata{DeviceInfo: "test"},
	}
}

func mustCreateSession(t *testing.T, m *MemoryStore, userID, suffix string, now time.Time) Session {
	t.Helper()

	s, err := m.Create(context.Background(), now, testCreateParams(userID, suffix, now))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestMemoryStore_Create_RejectsDuplicateHashes(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()
	mustCreateSession(t, m, "u-1", "one", now)

	p := testCreateParams("u-2", "two", now)
	p.AccessHash = hashToken("access-one")
	if _, err := m.Create(context.Background(), now, p); err == nil {
		t.Fatalf("expected duplicate access hash rejected")
	}

	p = testCreateParams("u-2", "two", now)
	p.RefreshHash = hashToken("refresh-one")
	if _, err := m.Create(context.Background(), now, p); err == nil {
		t.Fatalf("expected duplicate refresh hash rejected")
	}
}

func TestMemoryStore_ReplaceTokens_VersionGate(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()
	s := mustCreateSession(t, m, "u-1", "one", now)

	repl := ReplaceParams{
		AccessHash:       hashToken("access-one-b"),
		RefreshHash:      hashToken("refresh-one-b"),
		ExpiresAt:        now.Add(30 * time.Minute),
		RefreshExpiresAt: now.Add(169 * time.Hour),
	}

	got, err := m.ReplaceTokens(context.Background(), now.Add(time.Minute), s.ID, s.TokenVersion, repl)
	if err != nil {
		t.Fatalf("ReplaceTokens: %v", err)
	}
	if got.TokenVersion != s.TokenVersion+1 {
		t.Fatalf("expected version %d, got %d", s.TokenVersion+1, got.TokenVersion)
	}

	// A racer still holding the old version loses the swap.
	if _, err := m.ReplaceTokens(context.Background(), now.Add(time.Minute), s.ID, s.TokenVersion, repl); !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("expected ErrRotationConflict on stale version, got %v", err)
	}

	if _, err := m.ReplaceTokens(context.Background(), now, "01JUNKJUNKJUNKJUNKJUNKJUNK", 1, repl); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}

	if _, err := m.Invalidate(context.Background(), now.Add(2*time.Minute), s.ID, "logout"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := m.ReplaceTokens(context.Background(), now.Add(3*time.Minute), s.ID, got.TokenVersion, repl); !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("expected ErrRotationConflict on revoked session, got %v", err)
	}
}

func TestMemoryStore_Invalidate_SentinelAndIdempotency(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()
	s := mustCreateSession(t, m, "u-1", "one", now)

	ok, err := m.Invalidate(context.Background(), now.Add(time.Minute), s.ID, "logout")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if !ok {
		t.Fatalf("expected first invalidation to hit")
	}

	got, err := m.GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AccessTokenHash != Invalidated || got.RefreshTokenHash != Invalidated {
		t.Fatalf("expected sentinel hashes, got %q/%q", got.AccessTokenHash, got.RefreshTokenHash)
	}
	if got.PrevRefreshTokenHash != nil {
		t.Fatalf("expected previous hash cleared")
	}
	if got.IsOnline {
		t.Fatalf("expected is_online=false")
	}
	if got.RevokedAt == nil || got.RevocationReason == nil || *got.RevocationReason != "logout" {
		t.Fatalf("expected revocation stamp, got %v/%v", got.RevokedAt, got.RevocationReason)
	}

	// The token indexes no longer resolve.
	if _, err := m.GetByAccessHash(context.Background(), s.AccessTokenHash); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected access hash unresolvable, got %v", err)
	}
	if _, err := m.GetByRefreshHash(context.Background(), s.RefreshTokenHash); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected refresh hash unresolvable, got %v", err)
	}

	// Repeating keeps the original stamp.
	ok, err = m.Invalidate(context.Background(), now.Add(time.Hour), s.ID, "expired")
	if err != nil {
		t.Fatalf("Invalidate again: %v", err)
	}
	if ok {
		t.Fatalf("expected second invalidation to miss")
	}
	got, err = m.GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if *got.RevocationReason != "logout" || !got.RevokedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected original stamp preserved, got %v/%v", got.RevokedAt, got.RevocationReason)
	}
}

func TestMemoryStore_InvalidateByRefreshHash_MissIsNotAnError(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()

	ok, err := m.InvalidateByRefreshHash(context.Background(), now, hashToken("never-issued"), "logout")
	if err != nil {
		t.Fatalf("InvalidateByRefreshHash: %v", err)
	}
	if ok {
		t.Fatalf("expected miss on unknown hash")
	}
}

func TestMemoryStore_InvalidateAll_SkipsCarriers(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()

	mustCreateSession(t, m, "u-1", "one", now)
	mustCreateSession(t, m, "u-1", "two", now)
	mustCreateSession(t, m, "u-2", "other", now)

	resetHash := hashToken("reset-token")
	if err := m.SetPasswordReset(context.Background(), now, "u-1", resetHash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetPasswordReset: %v", err)
	}

	n, err := m.InvalidateAll(context.Background(), now.Add(time.Minute), "u-1", "suspended")
	if err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 real sessions revoked, got %d", n)
	}

	// The pending reset token survives a session sweep.
	userID, err := m.ConsumePasswordReset(context.Background(), now.Add(2*time.Minute), resetHash)
	if err != nil {
		t.Fatalf("ConsumePasswordReset: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("expected u-1, got %q", userID)
	}

	// The other user's session is untouched.
	sessions, err := m.List(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Revoked() {
		t.Fatalf("expected u-2 session live")
	}
}

func TestMemoryStore_List_NewestFirstAndCarrierFree(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()

	s1 := mustCreateSession(t, m, "u-1", "one", now)
	s2 := mustCreateSession(t, m, "u-1", "two", now.Add(time.Minute))
	if err := m.SetEmailVerification(context.Background(), now, "u-1", hashToken("verify"), now.Add(24*time.Hour)); err != nil {
		t.Fatalf("SetEmailVerification: %v", err)
	}
	if _, err := m.Invalidate(context.Background(), now.Add(2*time.Minute), s1.ID, "logout"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	got, err := m.List(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows (revoked included, carrier excluded), got %d", len(got))
	}
	if got[0].ID != s2.ID || got[1].ID != s1.ID {
		t.Fatalf("expected newest first, got %q then %q", got[0].ID, got[1].ID)
	}
	if !got[1].Revoked() {
		t.Fatalf("expected revoked session still listed")
	}
}

func TestMemoryStore_PrevHashIndex_FollowsRotation(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()
	s := mustCreateSession(t, m, "u-1", "one", now)

	oldRefresh := s.RefreshTokenHash
	repl := ReplaceParams{
		AccessHash:       hashToken("access-one-b"),
		RefreshHash:      hashToken("refresh-one-b"),
		ExpiresAt:        now.Add(30 * time.Minute),
		RefreshExpiresAt: now.Add(169 * time.Hour),
	}
	if _, err := m.ReplaceTokens(context.Background(), now.Add(time.Minute), s.ID, s.TokenVersion, repl); err != nil {
		t.Fatalf("ReplaceTokens: %v", err)
	}

	got, err := m.GetByPrevRefreshHash(context.Background(), oldRefresh)
	if err != nil {
		t.Fatalf("GetByPrevRefreshHash: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("expected rotated session, got %q", got.ID)
	}

	// The old hash no longer resolves as a current token.
	if _, err := m.GetByRefreshHash(context.Background(), oldRefresh); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old refresh hash retired, got %v", err)
	}

	// Invalidation drops the replay tripwire with the session.
	if _, err := m.Invalidate(context.Background(), now.Add(2*time.Minute), s.ID, "logout"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := m.GetByPrevRefreshHash(context.Background(), oldRefresh); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected prev hash unresolvable after revocation, got %v", err)
	}
}

func TestMemoryStore_Touch_UnknownSession(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	if err := m.Touch(context.Background(), storeNow(), "01JUNKJUNKJUNKJUNKJUNKJUNK"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_CountOnline(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := storeNow()
	ctx := context.Background()

	mustCreateSession(t, m, "u-1", "one", now)
	second := mustCreateSession(t, m, "u-1", "two", now)

	// An expired row and a carrier row must not count.
	expired := testCreateParams("u-2", "three", now)
	expired.ExpiresAt = now.Add(-time.Hour)
	expired.RefreshExpiresAt = now.Add(-time.Minute)
	if _, err := m.Create(ctx, now.Add(-2*time.Hour), expired); err != nil {
		t.Fatalf("Create expired: %v", err)
	}
	if err := m.SetPasswordReset(ctx, now, "u-2", hashToken("reset-three"), now.Add(time.Hour)); err != nil {
		t.Fatalf("SetPasswordReset: %v", err)
	}

	n, err := m.CountOnline(ctx, now)
	if err != nil {
		t.Fatalf("CountOnline: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 online sessions, got %d", n)
	}

	if _, err := m.Invalidate(ctx, now, second.ID, "logout"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	n, err = m.CountOnline(ctx, now)
	if err != nil {
		t.Fatalf("CountOnline: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 online session after revoke, got %d", n)
	}
}
