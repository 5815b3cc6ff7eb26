package identity

import (
	"context"
	"time"
)

// User is Agora's canonical security principal.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string

	DisplayName *string

	Role   Role
	Status Status

	EmailVerified bool

	// PasswordHash is the PHC-encoded Argon2id hash. Never serialized to clients.
	PasswordHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName *string

	// Role defaults to RoleUser when empty.
	Role Role

	Now time.Time
}

// Store is the principal persistence boundary.
//
// GetUserByIdentifier accepts either an email address or a username; the
// store matches against the normalized columns. Missing rows surface as
// NotFoundError (IsNotFound), uniqueness conflicts as ConflictError.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string, now time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error
	SetStatus(ctx context.Context, userID string, status Status, now time.Time) error
}
