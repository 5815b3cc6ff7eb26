package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when a token fails verification or validation.
	// The more specific sentinels below all wrap it.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenMalformed is returned when the input is not a well-formed token.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)

	// ErrTokenBadSignature is returned when the signature does not verify.
	ErrTokenBadSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)

	// ErrTokenExpired is returned when the token's own lifetime has elapsed.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrSessionNotFound is returned when a token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session's refresh lifetime has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been invalidated.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuseDetected is returned when a rotated-away refresh token is
	// presented again. All sessions for the user are revoked before this is returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrRotationConflict is returned to the loser of a concurrent rotation race.
	ErrRotationConflict = errors.New("rotation conflict")

	// ErrActionTokenInvalid is returned when a password-reset or
	// email-verification token is unknown, expired, or already consumed.
	ErrActionTokenInvalid = errors.New("action token invalid")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsRotationDenied reports whether err is one of the routine outcomes under
// which a refresh attempt is denied and the caller must re-authenticate.
// Unexpected store/infra errors are not covered and should surface as 500s.
func IsRotationDenied(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrRefreshReuseDetected) ||
		errors.Is(err, ErrRotationConflict)
}
