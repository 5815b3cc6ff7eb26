package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (agora.sessions).
//
// The pgx pool is owned by the caller; this store must not close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the session store (default "agora").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "agora",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

const sessionColumns = `
	id, user_id, access_token_hash, refresh_token_hash, prev_refresh_token_hash,
	token_version, issued_at, expires_at, refresh_expires_at, last_used_at,
	revoked_at, revocation_reason, is_online, device_info, ip, user_agent,
	password_reset_hash, password_reset_expires_at, email_verify_hash, email_verify_expires_at
`

// Create inserts a new session row and returns it with its generated ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, p CreateParams) (Session, error) {
	id := ulid.Make().String()

	var ip net.IP
	if p.Meta.IPAddress != nil {
		ip = p.Meta.IPAddress
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO `+s.table()+` (
			id, user_id, access_token_hash, refresh_token_hash,
			token_version, issued_at, expires_at, refresh_expires_at,
			last_used_at, is_online, device_info, ip, user_agent
		) VALUES (
			$1, $2, $3, $4,
			1, $5, $6, $7,
			$5, TRUE, $8, $9, $10
		)
		RETURNING `+sessionColumns,
		id, p.UserID, p.AccessHash, p.RefreshHash,
		now, p.ExpiresAt, p.RefreshExpiresAt,
		nullIfEmpty(p.Meta.DeviceInfo), ip, nullIfEmpty(p.Meta.UserAgent),
	)

	out, err := scanSession(row)
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	return s.getWhere(ctx, `id = $1`, sessionID)
}

// GetByAccessHash loads the session holding this access token hash.
func (s *PostgresStore) GetByAccessHash(ctx context.Context, hash string) (Session, error) {
	return s.getWhere(ctx, `access_token_hash = $1`, hash)
}

// GetByRefreshHash loads the session holding this refresh token hash.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, hash string) (Session, error) {
	return s.getWhere(ctx, `refresh_token_hash = $1`, hash)
}

// GetByPrevRefreshHash loads the session that rotated this hash away.
func (s *PostgresStore) GetByPrevRefreshHash(ctx context.Context, hash string) (Session, error) {
	return s.getWhere(ctx, `prev_refresh_token_hash = $1`, hash)
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, arg any) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM `+s.table()+` WHERE `+where, arg)

	out, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// ReplaceTokens overwrites the token pair in place under a version CAS.
//
// SET expressions read the pre-update row, so prev_refresh_token_hash
// captures the hash being rotated away. Zero rows updated means the session
// was revoked, invalidated, or won by a concurrent rotation.
func (s *PostgresStore) ReplaceTokens(ctx context.Context, now time.Time, sessionID string, expectVersion int64, p ReplaceParams) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE `+s.table()+`
		SET
			access_token_hash = $3,
			refresh_token_hash = $4,
			prev_refresh_token_hash = refresh_token_hash,
			expires_at = $5,
			refresh_expires_at = $6,
			last_used_at = $2,
			is_online = TRUE,
			token_version = token_version + 1
		WHERE id = $1
		  AND token_version = $7
		  AND revoked_at IS NULL
		  AND refresh_token_hash <> 'INVALIDATED'
		RETURNING `+sessionColumns,
		sessionID, now, p.AccessHash, p.RefreshHash, p.ExpiresAt, p.RefreshExpiresAt, expectVersion,
	)

	out, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrRotationConflict
	}
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET last_used_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Invalidate terminates a single session (idempotent).
func (s *PostgresStore) Invalidate(ctx context.Context, now time.Time, sessionID string, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET access_token_hash = 'INVALIDATED',
		    refresh_token_hash = 'INVALIDATED',
		    prev_refresh_token_hash = NULL,
		    is_online = FALSE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1 AND refresh_token_hash <> 'INVALIDATED'
	`, sessionID, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InvalidateByRefreshHash terminates the session holding this refresh hash.
func (s *PostgresStore) InvalidateByRefreshHash(ctx context.Context, now time.Time, hash string, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET access_token_hash = 'INVALIDATED',
		    refresh_token_hash = 'INVALIDATED',
		    prev_refresh_token_hash = NULL,
		    is_online = FALSE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE refresh_token_hash = $1
	`, hash, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InvalidateAll terminates every live session for a user.
func (s *PostgresStore) InvalidateAll(ctx context.Context, now time.Time, userID string, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET access_token_hash = 'INVALIDATED',
		    refresh_token_hash = 'INVALIDATED',
		    prev_refresh_token_hash = NULL,
		    is_online = FALSE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1 AND refresh_token_hash <> 'INVALIDATED'
	`, userID, now, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InvalidateOthers terminates every live session for a user except one.
func (s *PostgresStore) InvalidateOthers(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET access_token_hash = 'INVALIDATED',
		    refresh_token_hash = 'INVALIDATED',
		    prev_refresh_token_hash = NULL,
		    is_online = FALSE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1 AND id <> $4 AND refresh_token_hash <> 'INVALIDATED'
	`, userID, now, reason, keepSessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns the user's session rows, newest first. Bare action-token
// carrier rows (sentinel hashes without a revocation mark) are excluded.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE user_id = $1
		  AND NOT (refresh_token_hash = 'INVALIDATED' AND revoked_at IS NULL)
		ORDER BY issued_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CountOnline reports how many unexpired sessions are currently marked online.
func (s *PostgresStore) CountOnline(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM `+s.table()+`
		WHERE is_online AND refresh_expires_at > $1
	`, now).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetPasswordReset stores a hashed password-reset token on a fresh carrier
// row, clearing any outstanding one in the same statement.
func (s *PostgresStore) SetPasswordReset(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error {
	id := ulid.Make().String()

	_, err := s.pool.Exec(ctx, `
		WITH cleared AS (
			UPDATE `+s.table()+`
			SET password_reset_hash = NULL,
			    password_reset_expires_at = NULL
			WHERE user_id = $2 AND password_reset_hash IS NOT NULL
		)
		INSERT INTO `+s.table()+` (
			id, user_id, access_token_hash, refresh_token_hash,
			token_version, issued_at, expires_at, refresh_expires_at,
			is_online, password_reset_hash, password_reset_expires_at
		) VALUES (
			$1, $2, 'INVALIDATED', 'INVALIDATED',
			1, $3, $3, $3,
			FALSE, $4, $5
		)
	`, id, userID, now, hash, expiresAt)
	return err
}

// ConsumePasswordReset atomically consumes an unexpired password-reset token.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, now time.Time, hash string) (string, error) {
	var userID string

	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.table()+`
		SET password_reset_hash = NULL,
		    password_reset_expires_at = NULL,
		    last_used_at = $2
		WHERE password_reset_hash = $1
		  AND password_reset_expires_at > $2
		RETURNING user_id
	`, hash, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrActionTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// SetEmailVerification stores a hashed email-verification token on a fresh
// carrier row, clearing any outstanding one in the same statement.
func (s *PostgresStore) SetEmailVerification(ctx context.Context, now time.Time, userID string, hash string, expiresAt time.Time) error {
	id := ulid.Make().String()

	_, err := s.pool.Exec(ctx, `
		WITH cleared AS (
			UPDATE `+s.table()+`
			SET email_verify_hash = NULL,
			    email_verify_expires_at = NULL
			WHERE user_id = $2 AND email_verify_hash IS NOT NULL
		)
		INSERT INTO `+s.table()+` (
			id, user_id, access_token_hash, refresh_token_hash,
			token_version, issued_at, expires_at, refresh_expires_at,
			is_online, email_verify_hash, email_verify_expires_at
		) VALUES (
			$1, $2, 'INVALIDATED', 'INVALIDATED',
			1, $3, $3, $3,
			FALSE, $4, $5
		)
	`, id, userID, now, hash, expiresAt)
	return err
}

// ConsumeEmailVerification atomically consumes an unexpired email-verification token.
func (s *PostgresStore) ConsumeEmailVerification(ctx context.Context, now time.Time, hash string) (string, error) {
	var userID string

	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.table()+`
		SET email_verify_hash = NULL,
		    email_verify_expires_at = NULL,
		    last_used_at = $2
		WHERE email_verify_hash = $1
		  AND email_verify_expires_at > $2
		RETURNING user_id
	`, hash, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrActionTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.AccessTokenHash,
		&s.RefreshTokenHash,
		&s.PrevRefreshTokenHash,
		&s.TokenVersion,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.RefreshExpiresAt,
		&s.LastUsedAt,
		&s.RevokedAt,
		&s.RevocationReason,
		&s.IsOnline,
		&s.DeviceInfo,
		&s.IPAddress,
		&s.UserAgent,
		&s.PasswordResetHash,
		&s.PasswordResetExpiresAt,
		&s.EmailVerifyHash,
		&s.EmailVerifyExpiresAt,
	)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
