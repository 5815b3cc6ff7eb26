package identity

import (
	"context"
	"testing"
	"time"
)

func testNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func mustCreateTestUser(t *testing.T, s *MemoryStore, username, email string) User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), CreateUserInput{
		Username: username,
		Email:    email,
		Password: "TestPass123",
		Now:      testNow(),
	})
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}
	return u
}

func TestMemoryStore_CreateUser_NormalizesAndDefaults(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	u := mustCreateTestUser(t, s, "  NaViD ", " Navid@Example.COM ")

	if u.ID == "" {
		t.Fatalf("expected non-empty id")
	}
	if u.Username != "NaViD" {
		t.Fatalf("expected trimmed username, got %q", u.Username)
	}
	if u.UsernameNorm != "navid" {
		t.Fatalf("expected username_norm=navid, got %q", u.UsernameNorm)
	}
	if u.EmailNorm != "navid@example.com" {
		t.Fatalf("expected email_norm=navid@example.com, got %q", u.EmailNorm)
	}
	if u.Role != RoleUser {
		t.Fatalf("expected default role=user, got %q", u.Role)
	}
	if u.Status != StatusPending {
		t.Fatalf("expected new accounts pending, got %q", u.Status)
	}
	if u.EmailVerified {
		t.Fatalf("expected email_verified=false on create")
	}
	if u.PasswordHash == "" || u.PasswordHash == "TestPass123" {
		t.Fatalf("expected hashed password, got %q", u.PasswordHash)
	}
	if !u.CreatedAt.Equal(testNow()) || !u.UpdatedAt.Equal(testNow()) {
		t.Fatalf("expected timestamps from input, got created=%v updated=%v", u.CreatedAt, u.UpdatedAt)
	}
}

func TestMemoryStore_CreateUser_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	mustCreateTestUser(t, s, "Navid", "first@example.com")

	_, err := s.CreateUser(context.Background(), CreateUserInput{
		Username: "nAvId",
		Email:    "second@example.com",
		Password: "TestPass123",
		Now:      testNow(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestMemoryStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	mustCreateTestUser(t, s, "first", "User@Example.com")

	_, err := s.CreateUser(context.Background(), CreateUserInput{
		Username: "second",
		Email:    "user@example.COM",
		Password: "TestPass123",
		Now:      testNow(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestMemoryStore_CreateUser_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   CreateUserInput
	}{
		{name: "missing username", in: CreateUserInput{Email: "u@example.com", Password: "TestPass123"}},
		{name: "missing email", in: CreateUserInput{Username: "u", Password: "TestPass123"}},
		{name: "email without at sign", in: CreateUserInput{Username: "u", Email: "not-an-email", Password: "TestPass123"}},
		{name: "missing password", in: CreateUserInput{Username: "u", Email: "u@example.com"}},
		{name: "unknown role", in: CreateUserInput{Username: "u", Email: "u@example.com", Password: "TestPass123", Role: Role("root")}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := NewMemoryStore()
			_, err := s.CreateUser(context.Background(), tc.in)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !IsInvalidInput(err) {
				t.Fatalf("expected invalid input error, got: %v", err)
			}
		})
	}
}

func TestMemoryStore_GetUserByIdentifier_EmailOrUsername(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	created := mustCreateTestUser(t, s, "Navid", "navid@example.com")

	byEmail, err := s.GetUserByIdentifier(context.Background(), " Navid@Example.COM ")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("expected id %q, got %q", created.ID, byEmail.ID)
	}

	byUsername, err := s.GetUserByIdentifier(context.Background(), "nAvId")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byUsername.ID != created.ID {
		t.Fatalf("expected id %q, got %q", created.ID, byUsername.ID)
	}

	_, err = s.GetUserByIdentifier(context.Background(), "nobody@example.com")
	if err == nil {
		t.Fatalf("expected not found, got nil")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got: %v", err)
	}
}

func TestMemoryStore_UpdatePassword(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	u := mustCreateTestUser(t, s, "pwuser", "pw@example.com")

	newHash, err := HashPassword("NewTestPass456")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	later := testNow().Add(time.Hour)
	if err := s.UpdatePassword(context.Background(), u.ID, newHash, later); err != nil {
		t.Fatalf("update password: %v", err)
	}

	got, err := s.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordHash != newHash {
		t.Fatalf("password hash not replaced")
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated_at=%v, got %v", later, got.UpdatedAt)
	}

	if err := s.UpdatePassword(context.Background(), "missing-id", newHash, later); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown user, got: %v", err)
	}
}

func TestMemoryStore_MarkEmailVerified_PromotesPending(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	u := mustCreateTestUser(t, s, "pending", "pending@example.com")

	if err := s.MarkEmailVerified(context.Background(), u.ID, testNow().Add(time.Minute)); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	got, err := s.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.EmailVerified {
		t.Fatalf("expected email_verified=true")
	}
	if got.Status != StatusActive {
		t.Fatalf("expected pending account promoted to active, got %q", got.Status)
	}
}

func TestMemoryStore_MarkEmailVerified_DoesNotUnsuspend(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	u := mustCreateTestUser(t, s, "suspended", "suspended@example.com")

	if err := s.SetStatus(context.Background(), u.ID, StatusSuspended, testNow()); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.MarkEmailVerified(context.Background(), u.ID, testNow().Add(time.Minute)); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	got, err := s.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Fatalf("expected suspension preserved, got %q", got.Status)
	}
}

func TestMemoryStore_SetStatus(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	u := mustCreateTestUser(t, s, "statuser", "status@example.com")

	if err := s.SetStatus(context.Background(), u.ID, StatusSuspended, testNow()); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Fatalf("expected suspended, got %q", got.Status)
	}

	if err := s.SetStatus(context.Background(), u.ID, Status("frozen"), testNow()); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for unknown status, got: %v", err)
	}
	if err := s.SetStatus(context.Background(), "missing-id", StatusActive, testNow()); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown user, got: %v", err)
	}
}

func TestStatusCanAuthenticate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status Status
		want   bool
	}{
		{status: StatusPending, want: true},
		{status: StatusActive, want: true},
		{status: StatusSuspended, want: false},
		{status: StatusDeleted, want: false},
	}

	for _, tc := range cases {
		if got := tc.status.CanAuthenticate(); got != tc.want {
			t.Fatalf("CanAuthenticate(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
