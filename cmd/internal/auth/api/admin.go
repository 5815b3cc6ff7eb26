package api

import (
	"net/http"
	"strings"
	"time"

	"agora/cmd/identity"
	"agora/cmd/internal/auth/gate"
	"agora/cmd/internal/metrics"
)

// handleAdminUser dispatches /admin/users/{id}/{action} routes. The gate and
// the admin role check have already run.
func (h *Handler) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	userID, action, ok := strings.Cut(rest, "/")
	if !ok || userID == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch action {
	case "suspend":
		h.handleSuspendUser(w, r, userID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *Handler) handleSuspendUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	admin, _ := gate.FromContext(r.Context())

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.users.SetStatus(ctx, userID, identity.StatusSuspended, now); err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.serverError(w, r, "admin.suspend.status.fail", err, userID)
		return
	}

	// Suspension revokes synchronously: the next gate check must already fail.
	count, err := h.sessions.RevokeAll(ctx, now, userID, "suspended")
	if err != nil {
		h.serverError(w, r, "admin.suspend.revoke.fail", err, userID)
		return
	}
	metrics.SessionsRevokedTotal.WithLabelValues("suspended").Add(float64(count))
	h.auditUserSuspended(ctx, admin.UserID, userID, count, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "User suspended", Success: true})
}
