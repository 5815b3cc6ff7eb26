package api

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"
)

func (h *Handler) auditLoginFailed(ctx context.Context, userID *string, ip net.IP, ua string, identifier string, reason string) {
	h.insertAudit(ctx, "auth.login.failed", userID, nil, ip, ua, map[string]any{
		"identifier": identifier,
		"reason":     reason,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, sessionID string, ip net.IP, ua string, identifier string) {
	h.insertAudit(ctx, "auth.login.success", &userID, &sessionID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua string, identifier string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.login.rate_limited", nil, nil, ip, ua, map[string]any{
		"identifier":    identifier,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, userID string, sessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.success", &userID, &sessionID, ip, ua, nil)
}

func (h *Handler) auditRefreshReuse(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.reuse_detected", nil, nil, ip, ua, nil)
}

func (h *Handler) auditLogout(ctx context.Context, userID string, sessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout", &userID, &sessionID, ip, ua, nil)
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, count int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout_all", &userID, nil, ip, ua, map[string]any{
		"revoked": count,
	})
}

func (h *Handler) auditRegister(ctx context.Context, userID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.register", &userID, nil, ip, ua, nil)
}

func (h *Handler) auditEmailVerified(ctx context.Context, userID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.email.verified", &userID, nil, ip, ua, nil)
}

func (h *Handler) auditPasswordForgot(ctx context.Context, userID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.password.forgot", &userID, nil, ip, ua, nil)
}

func (h *Handler) auditPasswordReset(ctx context.Context, userID string, count int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.password.reset", &userID, nil, ip, ua, map[string]any{
		"revoked": count,
	})
}

func (h *Handler) auditPasswordChanged(ctx context.Context, userID string, sessionID string, count int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.password.changed", &userID, &sessionID, ip, ua, map[string]any{
		"revoked_others": count,
	})
}

func (h *Handler) auditSessionRevoked(ctx context.Context, userID string, sessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.session.revoked", &userID, &sessionID, ip, ua, nil)
}

func (h *Handler) auditUserSuspended(ctx context.Context, adminID string, userID string, count int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "admin.user.suspended", &adminID, nil, ip, ua, map[string]any{
		"target_user_id": userID,
		"revoked":        count,
	})
}

func (h *Handler) insertAudit(ctx context.Context, action string, userID *string, sessionID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	// Detached: a client disconnect must not cancel the audit write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO agora.audit_log (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, userID, sessionID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
