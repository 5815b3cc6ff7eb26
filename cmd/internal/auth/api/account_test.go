package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"agora/cmd/identity"
)

func TestRegister_VerifyEmail_Login(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]any{
		"username":    "navid",
		"email":       "test@example.com",
		"password":    "TestPass123",
		"displayName": "Navid",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created profileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if created.User.Status != string(identity.StatusPending) {
		t.Fatalf("status = %q, want %q", created.User.Status, identity.StatusPending)
	}
	if created.User.EmailVerified {
		t.Fatalf("fresh account must not be verified")
	}
	if created.User.DisplayName == nil || *created.User.DisplayName != "Navid" {
		t.Fatalf("displayName = %v, want Navid", created.User.DisplayName)
	}

	// Login is blocked until the address is verified.
	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"emailOrUsername": "test@example.com",
		"password":        "TestPass123",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pre-verify login: expected 403, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Email not verified" {
		t.Fatalf("expected %q, got %q", "Email not verified", got)
	}

	msg := env.sender.lastVerification(t)
	if msg.Email != "test@example.com" || msg.UserID != created.User.ID {
		t.Fatalf("unexpected verification message %+v", msg)
	}
	if msg.Token == "" {
		t.Fatalf("expected a verification token")
	}

	rec = env.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": msg.Token}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeMessage(t, rec); body.Message != "Email verified" || !body.Success {
		t.Fatalf("unexpected verify body %+v", body)
	}

	resp := env.login(t, "test@example.com", "TestPass123")
	if resp.User.Status != string(identity.StatusActive) {
		t.Fatalf("post-verify status = %q, want %q", resp.User.Status, identity.StatusActive)
	}
	if !resp.User.EmailVerified {
		t.Fatalf("expected emailVerified after verification")
	}

	// Verification tokens are single use.
	rec = env.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": msg.Token}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("token reuse: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Invalid or expired verification token" {
		t.Fatalf("expected %q, got %q", "Invalid or expired verification token", got)
	}
}

func TestRegister_Conflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "navid", "test@example.com", "TestPass123", identity.RoleUser, true)

	cases := []struct {
		name     string
		username string
		email    string
	}{
		{"username taken", "navid", "other@example.com"},
		{"email taken", "other", "test@example.com"},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
			"username": tc.username,
			"email":    tc.email,
			"password": "TestPass123",
		}, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", tc.name, rec.Code)
		}
		if got := decodeErrorBody(t, rec); got != "User already exists" {
			t.Fatalf("%s: expected %q, got %q", tc.name, "User already exists", got)
		}
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"missing username", "", "test@example.com", "TestPass123"},
		{"bad email", "navid", "nope", "TestPass123"},
		{"short password", "navid", "test@example.com", "short"},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
			"username": tc.username,
			"email":    tc.email,
			"password": tc.password,
		}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
		if got := decodeErrorBody(t, rec); got != "Invalid registration details" {
			t.Fatalf("%s: expected %q, got %q", tc.name, "Invalid registration details", got)
		}
	}
}

func TestVerifyEmail_BadTokens(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty token: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Verification token required" {
		t.Fatalf("expected %q, got %q", "Verification token required", got)
	}

	rec = env.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": "deadbeef"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown token: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Invalid or expired verification token" {
		t.Fatalf("expected %q, got %q", "Invalid or expired verification token", got)
	}
}

func TestForgotPassword_NoAccountOracle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "navid", "test@example.com", "TestPass123", identity.RoleUser, true)

	known := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "test@example.com"}, nil)
	if known.Code != http.StatusOK {
		t.Fatalf("known email: expected 200, got %d", known.Code)
	}
	unknown := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)
	if unknown.Code != http.StatusOK {
		t.Fatalf("unknown email: expected 200, got %d", unknown.Code)
	}

	// The response must not reveal whether the account exists.
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}

	msg := env.sender.lastReset(t)
	if msg.UserID != u.ID || msg.Token == "" {
		t.Fatalf("unexpected reset message %+v", msg)
	}

	rec := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty email: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Email required" {
		t.Fatalf("expected %q, got %q", "Email required", got)
	}
}

func TestResetPassword_Flow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "navid", "test@example.com", "TestPass123", identity.RoleUser, true)
	live := env.login(t, "test@example.com", "TestPass123")

	rec := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "test@example.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: expected 200, got %d", rec.Code)
	}
	token := env.sender.lastReset(t).Token

	rec = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":              token,
		"newPassword":        "NewPass456",
		"confirmNewPassword": "Other456",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatch: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Passwords do not match" {
		t.Fatalf("expected %q, got %q", "Passwords do not match", got)
	}

	rec = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":              token,
		"newPassword":        "short",
		"confirmNewPassword": "short",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Password does not meet requirements" {
		t.Fatalf("expected %q, got %q", "Password does not meet requirements", got)
	}

	// Rejected attempts must not have consumed the token.
	rec = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":              token,
		"newPassword":        "NewPass456",
		"confirmNewPassword": "NewPass456",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeMessage(t, rec); body.Message != "Password reset successful" || !body.Success {
		t.Fatalf("unexpected reset body %+v", body)
	}

	// Every pre-reset session is gone.
	rec = env.do(t, http.MethodGet, "/profile", nil, bearer(live.Tokens.AccessToken))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("old session: expected 403, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"emailOrUsername": "test@example.com",
		"password":        "TestPass123",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password: expected 401, got %d", rec.Code)
	}
	env.login(t, "test@example.com", "NewPass456")

	// Reset tokens are single use.
	rec = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":              token,
		"newPassword":        "NewPass456",
		"confirmNewPassword": "NewPass456",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("token reuse: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Invalid or expired reset token" {
		t.Fatalf("expected %q, got %q", "Invalid or expired reset token", got)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "navid", "test@example.com", "TestPass123", identity.RoleUser, true)

	other := env.login(t, "test@example.com", "TestPass123")
	current := env.login(t, "test@example.com", "TestPass123")

	rec := env.do(t, http.MethodPost, "/auth/change-password", map[string]string{
		"currentPassword":    "WrongPass123",
		"newPassword":        "NewPass456",
		"confirmNewPassword": "NewPass456",
	}, bearer(current.Tokens.AccessToken))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current: expected 401, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Invalid credentials" {
		t.Fatalf("expected %q, got %q", "Invalid credentials", got)
	}

	rec = env.do(t, http.MethodPost, "/auth/change-password", map[string]string{
		"currentPassword":    "TestPass123",
		"newPassword":        "NewPass456",
		"confirmNewPassword": "Other456",
	}, bearer(current.Tokens.AccessToken))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatch: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Passwords do not match" {
		t.Fatalf("expected %q, got %q", "Passwords do not match", got)
	}

	rec = env.do(t, http.MethodPost, "/auth/change-password", map[string]string{}, bearer(current.Tokens.AccessToken))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Current and new password are required" {
		t.Fatalf("expected %q, got %q", "Current and new password are required", got)
	}

	rec = env.do(t, http.MethodPost, "/auth/change-password", map[string]string{
		"currentPassword":    "TestPass123",
		"newPassword":        "NewPass456",
		"confirmNewPassword": "NewPass456",
	}, bearer(current.Tokens.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("change: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeMessage(t, rec); body.Message != "Password changed" || !body.Success {
		t.Fatalf("unexpected change body %+v", body)
	}

	// The session that changed the password survives; every other dies.
	rec = env.do(t, http.MethodGet, "/profile", nil, bearer(current.Tokens.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("current session: expected 200, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/profile", nil, bearer(other.Tokens.AccessToken))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other session: expected 403, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/refresh-token", map[string]string{
		"refreshToken": other.Tokens.RefreshToken,
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("other refresh: expected 401, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"emailOrUsername": "test@example.com",
		"password":        "TestPass123",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password: expected 401, got %d", rec.Code)
	}
	env.login(t, "test@example.com", "NewPass456")
}
