package gate

import "net/http"

// RequireRoles allows only identities holding one of the given roles.
// It must run after Require, which attaches the identity.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Access token required")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerOr reports whether the identity owns the resource or holds one of
// the bypass roles.
func OwnerOr(id Identity, ownerID string, bypassRoles ...string) bool {
	if id.UserID != "" && id.UserID == ownerID {
		return true
	}
	for _, role := range bypassRoles {
		if role != "" && id.Role == role {
			return true
		}
	}
	return false
}
