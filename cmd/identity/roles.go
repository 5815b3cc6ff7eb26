package identity

// Role is the coarse authorization level carried in token claims.
type Role string

const (
	// RoleUser is the default role for registered principals.
	RoleUser Role = "user"
	// RoleModerator may act on other users' content but not on accounts.
	RoleModerator Role = "moderator"
	// RoleAdmin bypasses ownership checks and may manage accounts.
	RoleAdmin Role = "admin"
)

// Status is the account lifecycle state.
type Status string

const (
	// StatusPending is a registered account awaiting email verification.
	StatusPending Status = "pending"
	// StatusActive may authenticate.
	StatusActive Status = "active"
	// StatusSuspended is blocked by moderation; sessions are revoked on entry.
	StatusSuspended Status = "suspended"
	// StatusDeleted is a soft-deleted account; indistinguishable from absent at login.
	StatusDeleted Status = "deleted"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusDeleted:
		return true
	default:
		return false
	}
}

// CanAuthenticate reports whether a principal in status s may hold sessions.
func (s Status) CanAuthenticate() bool {
	return s == StatusActive || s == StatusPending
}
