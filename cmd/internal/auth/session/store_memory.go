package session

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore keeps sessions in process memory.
//
// It exists for tests and for running the service without a database.
// Construct with NewMemoryStore.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Session
	byAccess map[string]string // access hash -> session id
	byRefr   map[string]string // refresh hash -> session id
	byPrev   map[string]string // previous refresh hash -> session id
	byReset  map[string]string // password reset hash -> session id
	byVerify map[string]string // email verification hash -> session id
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Session),
		byAccess: make(map[string]string),
		byRefr:   make(map[string]string),
		byPrev:   make(map[string]string),
		byReset:  make(map[string]string),
		byVerify: make(map[string]string),
	}
}

// Create inserts a new session row.
func (m *MemoryStore) Create(ctx context.Context, now time.Time, p CreateParams) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byAccess[p.AccessHash]; dup {
		return Session{}, fmt.Errorf("session: duplicate access token hash")
	}
	if _, dup := m.byRefr[p.RefreshHash]; dup {
		return Session{}, fmt.Errorf("session: duplicate refresh token hash")
	}

	id := ulid.Make().String()
	lastUsed := now

	s := Session{
		ID:               id,
		UserID:           p.UserID,
		AccessTokenHash:  p.AccessHash,
		RefreshTokenHash: p.RefreshHash,
		TokenVersion:     1,
		IssuedAt:         now,
		ExpiresAt:        p.ExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
		LastUsedAt:       &lastUsed,
		IsOnline:         true,
		DeviceInfo:       strPtrOrNil(p.Meta.DeviceInfo),
		IPAddress:        cloneIP(p.Meta.IPAddress),
		UserAgent:        strPtrOrNil(p.Meta.UserAgent),
	}

	m.byID[id] = s
	m.byAccess[p.AccessHash] = id
	m.byRefr[p.RefreshHash] = id

	return cloneSession(s), nil
}

// GetByID loads a session row by ID.
func (m *MemoryStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	return m.get(ctx, func() (string, bool) { return sessionID, true })
}

// GetByAccessHash loads the session holding this access token hash.
func (m *MemoryStore) GetByAccessHash(ctx context.Context, hash string) (Session, error) {
	return m.get(ctx, func() (string, bool) { id, ok := m.byAccess[hash]; return id, ok })
}

// GetByRefreshHash loads the session holding this refresh token hash.
func (m *MemoryStore) GetByRefreshHash(ctx context.Context, hash string) (Session, error) {
	return m.get(ctx, func() (string, bool) { id, ok := m.byRefr[hash]; return id, ok })
}

// GetByPrevRefreshHash loads the session that rotated this hash away.
func (m *MemoryStore) GetByPrevRefreshHash(ctx context.Context, hash string) (Session, error) {
	return m.get(ctx, func() (string, bool) { id, ok := m.byPrev[hash]; return id, ok })
}

func (m *MemoryStore) get(ctx context.Context, lookup func() (string, bool)) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := lookup()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s, ok := m.byID[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// ReplaceTokens overwrites the token pair in place under a version CAS.
func (m *MemoryStore) ReplaceTokens(ctx context.Context, now time.Time, sessionID string, expectVersion int64, p ReplaceParams) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.Revoked() || s.RefreshTokenHash == Invalidated || s.TokenVersion != expectVersion {
		return Session{}, ErrRotationConflict
	}

	delete(m.byAccess, s.AccessTokenHash)
	delete(m.byRefr, s.RefreshTokenHash)
	if s.PrevRefreshTokenHash != nil {
		delete(m.byPrev, *s.PrevRefreshTokenHash)
	}

	prev := s.RefreshTokenHash
	lastUsed := now

	s.PrevRefreshTokenHash = &prev
	s.AccessTokenHash = p.AccessHash
	s.RefreshTokenHash = p.RefreshHash
	s.ExpiresAt = p.ExpiresAt
	s.RefreshExpiresAt = p.RefreshExpiresAt
	s.TokenVersion++
	s.LastUsedAt = &lastUsed
	s.IsOnline = true

	m.byID[sessionID] = s
	m.byAccess[p.AccessHash] = sessionID
	m.byRefr[p.RefreshHash] = sessionID
	m.byPrev[prev] = sessionID

	return cloneSession(s), nil
}

// Touch updates last_used_at for a session.
func (m *MemoryStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	lastUsed := now
	s.LastUsedAt = &lastUsed
	m.byID[sessionID] = s
	return nil
}

// Invalidate terminates a single session (idempotent).
func (m *MemoryStore) Invalidate(ctx context.Context, now time.Time, sessionID string, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.invalidateLocked(now, sessionID, reason), nil
}

// InvalidateByRefreshHash terminates the session holding this refresh hash.
func (m *MemoryStore) InvalidateByRefreshHash(ctx context.Context, now time.Time, hash string, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRefr[hash]
	if !ok {
		return false, nil
	}
	return m.invalidateLocked(now, id, reason), nil
}

// InvalidateAll terminates every live session for a user.
func (m *MemoryStore) InvalidateAll(ctx context.Context, now time.Time, userID string, reason string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.byID {
		if s.UserID != userID {
			continue
		}
		if m.invalidateLocked(now, id, reason) {
			n++
		}
	}
	return n, nil
}

// InvalidateOthers terminates every live session for a user except one.
func (m *MemoryStore) InvalidateOthers(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.byID {
		if s.UserID != userID || id == keepSessionID {
			continue
		}
		if m.invalidateLocked(now, id, reason) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) invalidateLocked(now time.Time, sessionID string, reason string) bool {
	s, ok := m.byID[sessionID]
	if !ok {
		return false
	}
	if s.RefreshTokenHash == Invalidated {
		return false
	}

	delete(m.byAccess, s.AccessTokenHash)
	delete(m.byRefr, s.RefreshTokenHash)
	if s.PrevRefreshTokenHash != nil {
		delete(m.byPrev, *s.PrevRefreshTokenHash)
	}

	revokedAt := now
	r := reason

	s.AccessTokenHash = Invalidated
	s.RefreshTokenHash = Invalidated
	s.PrevRefreshTokenHash = nil
	s.IsOnline = false
	if s.RevokedAt == nil {
		s.RevokedAt = &revokedAt
		s.RevocationReason = &r
	}

	m.byID[sessionID] = s
	return true
}

// List returns the user's session rows, newest first.
func (m *MemoryStore) List(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, s := range m.byID {
		if s.UserID != userID || isCarrier(s) {
			continue
		}
		out = append(out, cloneSession(s))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CountOnline reports how many unexpired sessions are currently marked online.
func (m *MemoryStore) CountOnline(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.byID {
		if s.IsOnline && s.RefreshExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// SetPasswordReset stores a hashed password-reset token for the user.
func (m *MemoryStore) SetPasswordReset(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Latest-wins: clear any outstanding reset token for the user.
	for id, s := range m.byID {
		if s.UserID != userID || s.PasswordResetHash == nil {
			continue
		}
		delete(m.byReset, *s.PasswordResetHash)
		s.PasswordResetHash = nil
		s.PasswordResetExpiresAt = nil
		m.byID[id] = s
	}

	s := newCarrier(userID, now)
	s.PasswordResetHash = &hash
	s.PasswordResetExpiresAt = &expiresAt

	m.byID[s.ID] = s
	m.byReset[hash] = s.ID
	return nil
}

// ConsumePasswordReset atomically consumes an unexpired password-reset token.
func (m *MemoryStore) ConsumePasswordReset(ctx context.Context, now time.Time, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byReset[hash]
	if !ok {
		return "", ErrActionTokenInvalid
	}
	s := m.byID[id]
	if s.PasswordResetExpiresAt == nil || !s.PasswordResetExpiresAt.After(now) {
		return "", ErrActionTokenInvalid
	}

	delete(m.byReset, hash)
	s.PasswordResetHash = nil
	s.PasswordResetExpiresAt = nil
	lastUsed := now
	s.LastUsedAt = &lastUsed
	m.byID[id] = s

	return s.UserID, nil
}

// SetEmailVerification stores a hashed email-verification token for the user.
func (m *MemoryStore) SetEmailVerification(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.byID {
		if s.UserID != userID || s.EmailVerifyHash == nil {
			continue
		}
		delete(m.byVerify, *s.EmailVerifyHash)
		s.EmailVerifyHash = nil
		s.EmailVerifyExpiresAt = nil
		m.byID[id] = s
	}

	s := newCarrier(userID, now)
	s.EmailVerifyHash = &hash
	s.EmailVerifyExpiresAt = &expiresAt

	m.byID[s.ID] = s
	m.byVerify[hash] = s.ID
	return nil
}

// ConsumeEmailVerification atomically consumes an unexpired email-verification token.
func (m *MemoryStore) ConsumeEmailVerification(ctx context.Context, now time.Time, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byVerify[hash]
	if !ok {
		return "", ErrActionTokenInvalid
	}
	s := m.byID[id]
	if s.EmailVerifyExpiresAt == nil || !s.EmailVerifyExpiresAt.After(now) {
		return "", ErrActionTokenInvalid
	}

	delete(m.byVerify, hash)
	s.EmailVerifyHash = nil
	s.EmailVerifyExpiresAt = nil
	lastUsed := now
	s.LastUsedAt = &lastUsed
	m.byID[id] = s

	return s.UserID, nil
}

// newCarrier builds a bare row that exists only to carry an action token.
// Both token hashes are born as the sentinel, so it can never authenticate.
func newCarrier(userID string, now time.Time) Session {
	return Session{
		ID:               ulid.Make().String(),
		UserID:           userID,
		AccessTokenHash:  Invalidated,
		RefreshTokenHash: Invalidated,
		TokenVersion:     1,
		IssuedAt:         now,
		ExpiresAt:        now,
		RefreshExpiresAt: now,
		IsOnline:         false,
	}
}

func isCarrier(s Session) bool {
	return s.RefreshTokenHash == Invalidated && s.RevokedAt == nil
}

func cloneSession(s Session) Session {
	s.PrevRefreshTokenHash = clonedStr(s.PrevRefreshTokenHash)
	s.LastUsedAt = clonedTime(s.LastUsedAt)
	s.RevokedAt = clonedTime(s.RevokedAt)
	s.RevocationReason = clonedStr(s.RevocationReason)
	s.DeviceInfo = clonedStr(s.DeviceInfo)
	s.UserAgent = clonedStr(s.UserAgent)
	s.IPAddress = cloneIP(s.IPAddress)
	s.PasswordResetHash = clonedStr(s.PasswordResetHash)
	s.PasswordResetExpiresAt = clonedTime(s.PasswordResetExpiresAt)
	s.EmailVerifyHash = clonedStr(s.EmailVerifyHash)
	s.EmailVerifyExpiresAt = clonedTime(s.EmailVerifyExpiresAt)
	return s
}

func clonedStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clonedTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
