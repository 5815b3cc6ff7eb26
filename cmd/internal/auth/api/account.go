package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"agora/cmd/identity"
	"agora/cmd/internal/auth/session"
	"agora/cmd/internal/metrics"
)

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Now:         now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "User already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "Invalid registration details")
		default:
			h.serverError(w, r, "auth.register.fail", err, "")
		}
		return
	}

	// Verification token delivery is best-effort; the account exists either way.
	if plain, exp, err := h.sessions.IssueEmailVerification(ctx, now, u.ID); err != nil {
		h.log.Error("auth.register.verify_token.fail", "err", err, "user_id", u.ID)
	} else if err := h.emailSender.SendEmailVerification(ctx, EmailVerificationMessage{
		UserID:    u.ID,
		Email:     u.Email,
		Token:     plain,
		ExpiresAt: exp,
	}); err != nil {
		h.log.Error("auth.register.send_verify.fail", "err", err, "user_id", u.ID)
	}

	h.auditRegister(ctx, u.ID, ip, ua)

	writeJSON(w, http.StatusCreated, profileResponse{User: toUserResponse(u)})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req verifyEmailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "Verification token required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	userID, err := h.sessions.ConsumeEmailVerification(ctx, now, req.Token)
	if err != nil {
		if errors.Is(err, session.ErrActionTokenInvalid) {
			writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		h.serverError(w, r, "auth.verify_email.consume.fail", err, "")
		return
	}

	if err := h.users.MarkEmailVerified(ctx, userID, now); err != nil {
		if identity.IsNotFound(err) {
			// Account disappeared between issuance and redemption.
			writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		h.serverError(w, r, "auth.verify_email.mark.fail", err, userID)
		return
	}

	h.auditEmailVerified(ctx, userID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified", Success: true})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	u, err := h.users.GetUserByIdentifier(ctx, email)
	switch {
	case err == nil && u.Status != identity.StatusDeleted:
		plain, exp, err := h.sessions.IssuePasswordReset(ctx, now, u.ID)
		if err != nil {
			h.serverError(w, r, "auth.forgot_password.issue.fail", err, u.ID)
			return
		}
		if err := h.emailSender.SendPasswordReset(ctx, PasswordResetMessage{
			UserID:    u.ID,
			Email:     u.Email,
			Token:     plain,
			ExpiresAt: exp,
		}); err != nil {
			h.log.Error("auth.forgot_password.send.fail", "err", err, "user_id", u.ID)
		}
		h.auditPasswordForgot(ctx, u.ID, ip, ua)
	case err != nil && !identity.IsNotFound(err):
		h.serverError(w, r, "auth.forgot_password.lookup.fail", err, "")
		return
	}

	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "If the account exists, a password reset link has been sent",
		Success: true,
	})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "Reset token required")
		return
	}
	if req.NewPassword == "" || req.NewPassword != req.ConfirmNewPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if err := identity.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "Password does not meet requirements")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	userID, err := h.sessions.ConsumePasswordReset(ctx, now, req.Token)
	if err != nil {
		if errors.Is(err, session.ErrActionTokenInvalid) {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		h.serverError(w, r, "auth.reset_password.consume.fail", err, "")
		return
	}

	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		h.serverError(w, r, "auth.reset_password.hash.fail", err, userID)
		return
	}
	if err := h.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		h.serverError(w, r, "auth.reset_password.update.fail", err, userID)
		return
	}

	// A reset proves the old credential may be compromised: everything dies.
	count, err := h.sessions.RevokeAll(ctx, now, userID, "password_reset")
	if err != nil {
		h.serverError(w, r, "auth.reset_password.revoke.fail", err, userID)
		return
	}
	metrics.SessionsRevokedTotal.WithLabelValues("password_reset").Add(float64(count))
	h.auditPasswordReset(ctx, userID, count, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful", Success: true})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current and new password are required")
		return
	}
	if req.NewPassword != req.ConfirmNewPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if err := identity.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "Password does not meet requirements")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, err := h.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.serverError(w, r, "auth.change_password.lookup.fail", err, id.UserID)
		return
	}

	okPw, err := identity.VerifyPassword(req.CurrentPassword, u.PasswordHash)
	if err != nil || !okPw {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		h.serverError(w, r, "auth.change_password.hash.fail", err, id.UserID)
		return
	}
	if err := h.users.UpdatePassword(ctx, id.UserID, hash, now); err != nil {
		h.serverError(w, r, "auth.change_password.update.fail", err, id.UserID)
		return
	}

	// Every other session dies with the old password; this one stays.
	count, err := h.sessions.RevokeOthers(ctx, now, id.UserID, id.SessionID, "password_change")
	if err != nil {
		h.serverError(w, r, "auth.change_password.revoke.fail", err, id.UserID)
		return
	}
	metrics.SessionsRevokedTotal.WithLabelValues("password_change").Add(float64(count))
	h.auditPasswordChanged(ctx, id.UserID, id.SessionID, count, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed", Success: true})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.serverError(w, r, "auth.profile.lookup.fail", err, id.UserID)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: toUserResponse(u)})
}
