package api

import (
	"context"
	"time"
)

// EmailVerificationMessage carries everything a sender needs to deliver a
// verification link. Token is the plaintext one-shot token; it exists only in
// this message and in the recipient's inbox.
type EmailVerificationMessage struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// PasswordResetMessage carries everything a sender needs to deliver a
// password reset link.
type PasswordResetMessage struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// EmailSender delivers account emails. Implementations must be safe for
// concurrent use. Delivery failures are logged by the caller and never fail
// the originating request.
type EmailSender interface {
	SendEmailVerification(ctx context.Context, msg EmailVerificationMessage) error
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// NoopEmailSender drops every message. The default when no sender is wired.
type NoopEmailSender struct{}

func (NoopEmailSender) SendEmailVerification(context.Context, EmailVerificationMessage) error {
	return nil
}

func (NoopEmailSender) SendPasswordReset(context.Context, PasswordResetMessage) error {
	return nil
}
