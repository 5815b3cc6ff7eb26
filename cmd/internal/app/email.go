package app

import (
	"context"

	"agora/cmd/internal/auth/api"
)

// logEmailSender writes account emails to the logger instead of delivering
// them. Dev only: the plaintext one-shot token lands in the log stream, which
// is exactly what a local setup without SMTP needs and exactly what a
// production one must never do.
type logEmailSender struct {
	log Logger
}

func (s logEmailSender) SendEmailVerification(_ context.Context, msg api.EmailVerificationMessage) error {
	s.log.Info("email.verification.send",
		"user_id", msg.UserID,
		"email", msg.Email,
		"token", msg.Token,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}

func (s logEmailSender) SendPasswordReset(_ context.Context, msg api.PasswordResetMessage) error {
	s.log.Info("email.password_reset.send",
		"user_id", msg.UserID,
		"email", msg.Email,
		"token", msg.Token,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
