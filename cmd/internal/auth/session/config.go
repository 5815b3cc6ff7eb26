package session

import (
	"os"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls token TTLs, clock skew tolerance, HS256 signing secrets, the
// session-per-user policy, and the lifetimes of one-shot action tokens.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of signed tokens.
	Issuer string

	// AccessSecret signs access tokens. Required, at least 32 bytes.
	AccessSecret string

	// RefreshSecret signs refresh tokens. Required, at least 32 bytes,
	// and must differ from AccessSecret so that compromise of one key
	// does not compromise the other token class.
	RefreshSecret string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens and of the
	// session itself. Must be at least AccessTokenTTL.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// SingleSession, when true, allows one live session per user: a new
	// login invalidates all prior sessions. When false (default) each
	// login creates an independent session.
	SingleSession bool

	// PasswordResetTTL is the lifetime of password-reset tokens.
	PasswordResetTTL time.Duration

	// EmailVerifyTTL is the lifetime of email-verification tokens.
	EmailVerifyTTL time.Duration

	// ActionTokenBytes defines the number of random bytes used to
	// generate opaque one-shot action tokens.
	ActionTokenBytes int
}

const minSecretBytes = 32

// DefaultConfig returns a secure default configuration suitable for development.
//
// Signing secrets are intentionally left empty and must come from the
// environment; production deployments override the rest as needed.
func DefaultConfig() Config {
	return Config{
		Issuer:           "agora",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		ClockSkew:        30 * time.Second,
		SingleSession:    false,
		PasswordResetTTL: 1 * time.Hour,
		EmailVerifyTTL:   24 * time.Hour,
		ActionTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AGORA_AUTH_ACCESS_SECRET
//   - AGORA_AUTH_REFRESH_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - AGORA_AUTH_ISSUER
//   - AGORA_AUTH_ACCESS_TTL
//   - AGORA_AUTH_REFRESH_TTL
//   - AGORA_AUTH_CLOCK_SKEW
//   - AGORA_AUTH_SESSION_POLICY ("multi" or "single")
//   - AGORA_AUTH_PASSWORD_RESET_TTL
//   - AGORA_AUTH_EMAIL_VERIFY_TTL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("AGORA_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("AGORA_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("AGORA_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("AGORA_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	switch os.Getenv("AGORA_AUTH_SESSION_POLICY") {
	case "", "multi":
		cfg.SingleSession = false
	case "single":
		cfg.SingleSession = true
	default:
		return Config{}, ErrConfig
	}

	if v := os.Getenv("AGORA_AUTH_PASSWORD_RESET_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.PasswordResetTTL = d
	}

	if v := os.Getenv("AGORA_AUTH_EMAIL_VERIFY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.EmailVerifyTTL = d
	}

	cfg.AccessSecret = os.Getenv("AGORA_AUTH_ACCESS_SECRET")
	cfg.RefreshSecret = os.Getenv("AGORA_AUTH_REFRESH_SECRET")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if len(c.AccessSecret) < minSecretBytes || len(c.RefreshSecret) < minSecretBytes {
		return ErrConfig
	}
	if c.AccessSecret == c.RefreshSecret {
		return ErrConfig
	}
	if c.Issuer == "" {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}

	// Invariant: a session's access expiry never outlives its refresh expiry.
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return ErrConfig
	}

	if c.PasswordResetTTL <= 0 || c.EmailVerifyTTL <= 0 {
		return ErrConfig
	}
	if c.ActionTokenBytes < 16 || c.ActionTokenBytes > 64 {
		return ErrConfig
	}
	return nil
}
