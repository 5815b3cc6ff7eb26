package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps users in process memory.
//
// It exists for tests and for running the service without a database.
// The zero value is not usable; construct with NewMemoryStore.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]User
	byUser map[string]string // username_norm -> id
	byMail map[string]string // email_norm -> id
}

// NewMemoryStore constructs an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]User),
		byUser: make(map[string]string),
		byMail: make(map[string]string),
	}
}

// CreateUser creates a new user.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUser[u.UsernameNorm]; exists {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, exists := s.byMail[u.EmailNorm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	s.byID[u.ID] = u
	s.byUser[u.UsernameNorm] = u.ID
	s.byMail[u.EmailNorm] = u.ID

	return cloneUser(u), nil
}

// GetUserByID loads a user by id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return cloneUser(u), nil
}

// GetUserByIdentifier loads a user by normalized email or username.
func (s *MemoryStore) GetUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	const op = "identity.GetUserByIdentifier"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeIdentifier(identifier)
	if norm == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty identifier"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byMail[norm]
	if !ok {
		id, ok = s.byUser[norm]
	}
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

// UpdatePassword replaces the stored password hash.
func (s *MemoryStore) UpdatePassword(ctx context.Context, userID string, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if err := ctx.Err(); err != nil {
		return err
	}
	if passwordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty password hash"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = now
	s.byID[userID] = u
	return nil
}

// MarkEmailVerified flips email_verified and promotes pending accounts to active.
func (s *MemoryStore) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.MarkEmailVerified"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.EmailVerified = true
	if u.Status == StatusPending {
		u.Status = StatusActive
	}
	u.UpdatedAt = now
	s.byID[userID] = u
	return nil
}

// SetStatus transitions the account lifecycle state.
func (s *MemoryStore) SetStatus(ctx context.Context, userID string, status Status, now time.Time) error {
	const op = "identity.SetStatus"

	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidStatus(status) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown status"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.Status = status
	u.UpdatedAt = now
	s.byID[userID] = u
	return nil
}

func cloneUser(u User) User {
	if u.DisplayName != nil {
		d := *u.DisplayName
		u.DisplayName = &d
	}
	return u
}
