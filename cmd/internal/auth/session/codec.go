package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal is the minimal identity snapshot embedded in signed tokens.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Role     string
	Status   string
}

// Claims is the fixed, signed payload of access and refresh tokens.
//
// Claims cache the principal's state at issuance time and may drift from the
// live record; liveness decisions always come from the session row, so the
// claims are only used to recover identity quickly and to verify
// signature and expiry.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`

	jwt.RegisteredClaims
}

// Principal returns the identity snapshot carried by the claims.
func (c Claims) Principal() Principal {
	return Principal{
		UserID:   c.UserID,
		Username: c.Username,
		Email:    c.Email,
		Role:     c.Role,
		Status:   c.Status,
	}
}

// Codec signs and verifies access and refresh tokens as HS256 JWTs.
//
// Access and refresh tokens use different secrets and different lifetimes.
// Verification is pure and stateless: a token can be cryptographically valid
// yet logically dead because its session was revoked. Liveness is enforced
// one layer up, by Service against the Store.
type Codec struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clockSkew     time.Duration
}

// NewCodec builds a Codec from the configuration.
//
// Returns ErrConfig when secrets are missing, too short, or identical.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Codec{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		clockSkew:     cfg.ClockSkew,
	}, nil
}

// SignAccess issues a short-lived access token for the principal.
func (c *Codec) SignAccess(p Principal, now time.Time) (token string, exp time.Time, err error) {
	return c.sign(p, now, c.accessSecret, c.accessTTL)
}

// SignRefresh issues a refresh token for the principal.
func (c *Codec) SignRefresh(p Principal, now time.Time) (token string, exp time.Time, err error) {
	return c.sign(p, now, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess verifies an access token signature and lifetime.
func (c *Codec) VerifyAccess(token string, now time.Time) (Claims, error) {
	return c.verify(token, now, c.accessSecret)
}

// VerifyRefresh verifies a refresh token signature and lifetime.
func (c *Codec) VerifyRefresh(token string, now time.Time) (Claims, error) {
	return c.verify(token, now, c.refreshSecret)
}

func (c *Codec) sign(p Principal, now time.Time, secret []byte, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)

	claims := Claims{
		UserID:   p.UserID,
		Username: p.Username,
		Email:    p.Email,
		Role:     p.Role,
		Status:   p.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  c.issuer,
			Subject: p.UserID,
			// Token values double as store lookup keys, so two tokens for
			// the same principal must differ even within one clock tick.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *Codec) verify(tokenStr string, now time.Time, secret []byte) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	// Fixed claim schema: reject tokens missing the identity envelope even
	// when the signature verifies.
	if claims.UserID == "" || claims.Role == "" || claims.Status == "" {
		return Claims{}, ErrTokenMalformed
	}

	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}
