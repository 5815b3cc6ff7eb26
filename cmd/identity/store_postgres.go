package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "agora").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `
	id, username, username_norm, email, email_norm,
	display_name, role, status, email_verified, password_hash,
	created_at, updated_at
`

// CreateUser creates a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table("users")+` (
		     id, username, username_norm, email, email_norm,
		     display_name, role, status, email_verified, password_hash,
		     created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		u.ID,
		u.Username,
		u.UsernameNorm,
		u.Email,
		u.EmailNorm,
		u.DisplayName,
		string(u.Role),
		string(u.Status),
		u.EmailVerified,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return u, nil
}

// GetUserByID loads a user row by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table("users")+` WHERE id = $1`, id)
	return scanUser(op, row)
}

// GetUserByIdentifier loads a user by normalized email or username.
func (s *PostgresStore) GetUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	const op = "identity.GetUserByIdentifier"

	norm := NormalizeIdentifier(identifier)
	if norm == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty identifier"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table("users")+`
		 WHERE email_norm = $1 OR username_norm = $1`, norm)
	return scanUser(op, row)
}

// UpdatePassword replaces the stored password hash.
func (s *PostgresStore) UpdatePassword(ctx context.Context, userID string, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty password hash"}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// MarkEmailVerified flips email_verified and promotes pending accounts to active.
func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.MarkEmailVerified"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+`
		 SET email_verified = TRUE,
		     status = CASE WHEN status = 'pending' THEN 'active' ELSE status END,
		     updated_at = $2
		 WHERE id = $1`,
		userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// SetStatus transitions the account lifecycle state.
func (s *PostgresStore) SetStatus(ctx context.Context, userID string, status Status, now time.Time) error {
	const op = "identity.SetStatus"

	if !ValidStatus(status) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown status"}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+` SET status = $2, updated_at = $3 WHERE id = $1`,
		userID, string(status), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// prepareUser validates + normalizes input and builds the full row.
// Shared by the Postgres and memory stores so both enforce the same contract.
func prepareUser(op string, in CreateUserInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if username == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "valid email is required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !ValidRole(role) {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	var display *string
	if in.DisplayName != nil {
		if d := strings.TrimSpace(*in.DisplayName); d != "" {
			display = &d
		}
	}

	return User{
		ID:            uuid.New().String(),
		Username:      username,
		UsernameNorm:  NormalizeUsername(username),
		Email:         email,
		EmailNorm:     NormalizeEmail(email),
		DisplayName:   display,
		Role:          role,
		Status:        StatusPending,
		EmailVerified: false,
		PasswordHash:  pwHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func scanUser(op string, row pgx.Row) (User, error) {
	var u User
	var role, status string

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.UsernameNorm,
		&u.Email,
		&u.EmailNorm,
		&u.DisplayName,
		&role,
		&status,
		&u.EmailVerified,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}

	u.Role = Role(role)
	u.Status = Status(status)
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_users_email_norm":
		return "email", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
