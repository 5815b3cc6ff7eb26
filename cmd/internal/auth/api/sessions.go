package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"agora/cmd/internal/auth/session"
	"agora/cmd/internal/metrics"
)

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.sessions.Sessions(r.Context(), id.UserID)
	if err != nil {
		h.serverError(w, r, "auth.sessions.list.fail", err, id.UserID)
		return
	}

	resp := sessionListResponse{Sessions: make([]sessionInfo, 0, len(list))}
	for _, s := range list {
		resp.Sessions = append(resp.Sessions, toSessionInfo(s, id.SessionID))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/auth/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	target, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.serverError(w, r, "auth.sessions.get.fail", err, id.UserID)
		return
	}
	// Someone else's session is indistinguishable from a missing one.
	if target.UserID != id.UserID {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	revoked, err := h.sessions.RevokeByID(ctx, now, sessionID, "user_revoked")
	if err != nil {
		h.serverError(w, r, "auth.sessions.revoke.fail", err, id.UserID)
		return
	}
	if revoked {
		metrics.SessionsRevokedTotal.WithLabelValues("user_revoked").Inc()
	}
	h.auditSessionRevoked(ctx, id.UserID, sessionID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Session revoked", Success: true})
}
