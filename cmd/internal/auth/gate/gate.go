// Package gate resolves bearer access tokens into request identities.
//
// Require and Optional wrap protected routes. Both run the same pipeline:
// extract the bearer token, verify it cryptographically, resolve it to a
// live session row, then attach the caller's Identity to the request
// context. Require rejects on any failure; Optional proceeds anonymously.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agora/cmd/internal/auth/session"
)

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	SessionID string
}

type identityKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by Require or Optional.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Gate authenticates requests against the session service.
type Gate struct {
	sessions     *session.Service
	log          *slog.Logger
	touchTimeout time.Duration
}

// New constructs a Gate. A nil logger falls back to slog.Default.
func New(sessions *session.Service, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		sessions:     sessions,
		log:          log,
		touchTimeout: 5 * time.Second,
	}
}

// Require rejects requests that do not carry a valid, live access token.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.authenticate(w, r, true)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Optional runs the same pipeline but proceeds without identity on failure.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.authenticate(w, r, false)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request, reject bool) (Identity, bool) {
	token := BearerToken(r)
	if token == "" {
		if reject {
			writeError(w, http.StatusUnauthorized, "Access token required")
		}
		return Identity{}, false
	}

	claims, sess, err := g.sessions.Authenticate(r.Context(), time.Now().UTC(), token)
	if err != nil {
		if reject {
			g.rejectWith(w, r, err)
		}
		return Identity{}, false
	}

	// Liveness came from the session row; failure to stamp last_used_at
	// must not fail the request.
	go g.touch(sess.ID)

	return Identity{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: sess.ID,
	}, true
}

func (g *Gate) rejectWith(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusForbidden, "Token not found")
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionRevoked):
		writeError(w, http.StatusForbidden, "Invalid or expired token")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "Request timeout")
	default:
		g.log.Error("gate.authenticate.fail", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (g *Gate) touch(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.touchTimeout)
	defer cancel()

	if err := g.sessions.Touch(ctx, time.Now().UTC(), sessionID); err != nil {
		g.log.Debug("gate.touch.fail", "session_id", sessionID, "err", err)
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
// Missing headers and non-bearer schemes yield the empty string.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
