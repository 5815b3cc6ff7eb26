// Package api exposes the auth HTTP surface: login, token rotation, logout,
// password lifecycle, session management, and the profile route every other
// service uses as its canonical protected endpoint.
//
// Response bodies are flat JSON; failures always carry {"error": "<message>"}
// with the coarse message categories the platform contracts on. Handlers
// never reveal which sub-check rejected a credential or token.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"agora/cmd/identity"
	"agora/cmd/internal/auth/gate"
	"agora/cmd/internal/auth/session"
	"agora/cmd/internal/auth/throttle"
	"agora/cmd/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler wires the auth HTTP endpoints to the identity and session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service
	sessCfg  session.Config

	// pool is used for audit writes only; nil disables auditing.
	pool *pgxpool.Pool

	counter   throttle.Counter
	loginIP   *throttle.Limiter
	loginID   *throttle.Limiter
	refreshIP *throttle.Limiter

	emailSender EmailSender

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithEmailSender overrides the default no-op email sender.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if h == nil || sender == nil {
			return
		}
		h.emailSender = sender
	}
}

// WithAuditPool enables best-effort audit logging through the given pool.
func WithAuditPool(pool *pgxpool.Pool) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.pool = pool
	}
}

// WithCounter overrides the default in-memory throttle counter, e.g. with the
// Redis-backed one for horizontally scaled deployments.
func WithCounter(c throttle.Counter) HandlerOption {
	return func(h *Handler) {
		if h == nil || c == nil {
			return
		}
		h.counter = c
	}
}

// NewHandler constructs the auth API handler.
func NewHandler(log *slog.Logger, cfg Config, sessCfg session.Config, users identity.Store, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}

	h := &Handler{
		log:         log,
		cfg:         cfg,
		users:       users,
		sessions:    sessions,
		sessCfg:     sessCfg,
		emailSender: NoopEmailSender{},
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	if h.counter == nil {
		h.counter = throttle.NewMemoryCounter()
	}
	h.loginIP = throttle.NewLimiter(h.counter, int64(cfg.LoginIPMax), cfg.LoginIPWindow, log)
	h.loginID = throttle.NewLimiter(h.counter, int64(cfg.LoginIDMax), cfg.LoginIDWindow, log)
	h.refreshIP = throttle.NewLimiter(h.counter, int64(cfg.RefreshIPMax), cfg.RefreshIPWindow, log)

	// Dummy hash for timing-resistant login checks.
	h.dummyHash = identity.DummyPasswordHash()

	return h, nil
}

// Register wires auth routes onto the provided mux. The gate guards every
// Bearer-protected route; the admin surface additionally requires the admin
// role.
func (h *Handler) Register(mux *http.ServeMux, g *gate.Gate) {
	if h == nil || mux == nil || g == nil {
		return
	}

	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh-token", h.handleRefreshToken)
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/verify-email", h.handleVerifyEmail)
	mux.HandleFunc("/auth/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("/auth/reset-password", h.handleResetPassword)

	mux.Handle("/auth/logout", g.Require(http.HandlerFunc(h.handleLogout)))
	mux.Handle("/auth/logout-all", g.Require(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("/auth/change-password", g.Require(http.HandlerFunc(h.handleChangePassword)))
	mux.Handle("/auth/sessions", g.Require(http.HandlerFunc(h.handleSessions)))
	mux.Handle("/auth/sessions/", g.Require(http.HandlerFunc(h.handleSessionByID)))
	mux.Handle("/profile", g.Require(http.HandlerFunc(h.handleProfile)))

	adminOnly := gate.RequireRoles(string(identity.RoleAdmin))
	mux.Handle("/admin/users/", g.Require(adminOnly(http.HandlerFunc(h.handleAdminUser))))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identifier := identity.NormalizeIdentifier(req.EmailOrUsername)
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email or username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	// IP throttle first, identifier throttle second; both precede any DB work.
	if blocked, retryAfter := h.loginIP.Hit(ctx, "login:ip:"+ipKey(ip)); blocked {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := h.loginID.Hit(ctx, "login:id:"+identifier); blocked {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			// Timing resistance: verify against a throwaway hash when the
			// user is missing.
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			h.auditLoginFailed(ctx, nil, ip, ua, identifier, "not_found")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.serverError(w, r, "auth.login.lookup.fail", err, "")
		return
	}

	okPw, err := identity.VerifyPassword(req.Password, u.PasswordHash)
	if err != nil || !okPw {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		h.auditLoginFailed(ctx, &u.ID, ip, ua, identifier, "bad_password")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !u.EmailVerified {
		metrics.LoginsTotal.WithLabelValues("email_unverified").Inc()
		h.auditLoginFailed(ctx, &u.ID, ip, ua, identifier, "email_not_verified")
		writeError(w, http.StatusForbidden, "Email not verified")
		return
	}
	if !u.Status.CanAuthenticate() {
		metrics.LoginsTotal.WithLabelValues("inactive").Inc()
		h.auditLoginFailed(ctx, &u.ID, ip, ua, identifier, "status_"+string(u.Status))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	pair, sess, err := h.sessions.Issue(ctx, now, principalOf(u), session.Metadata{
		IPAddress: ip,
		UserAgent: ua,
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		h.serverError(w, r, "auth.login.issue.fail", err, u.ID)
		return
	}

	// A successful login clears the identifier's failure budget.
	h.loginID.Clear(ctx, "login:id:"+identifier)

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.SessionsIssuedTotal.Inc()
	h.auditLoginSuccess(ctx, u.ID, sess.ID, ip, ua, identifier)

	writeJSON(w, http.StatusOK, loginResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter := h.refreshIP.Hit(ctx, "refresh:ip:"+ipKey(ip)); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	pair, sess, err := h.sessions.Rotate(ctx, now, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			metrics.RotationsTotal.WithLabelValues("reuse_detected").Inc()
			h.auditRefreshReuse(ctx, ip, ua)
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		case session.IsRotationDenied(err):
			metrics.RotationsTotal.WithLabelValues("denied").Inc()
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		default:
			metrics.RotationsTotal.WithLabelValues("error").Inc()
			h.serverError(w, r, "auth.refresh.fail", err, "")
		}
		return
	}

	metrics.RotationsTotal.WithLabelValues("success").Inc()
	h.auditRefreshSuccess(ctx, sess.UserID, sess.ID, ip, ua)

	writeJSON(w, http.StatusOK, refreshResponse{Tokens: toTokenResponse(pair)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	revoked, err := h.sessions.RevokeByRefreshToken(ctx, now, refreshToken)
	if err != nil {
		h.serverError(w, r, "auth.logout.fail", err, id.UserID)
		return
	}
	if revoked {
		metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	}
	h.auditLogout(ctx, id.UserID, id.SessionID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful", Success: true})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	count, err := h.sessions.RevokeAll(ctx, now, id.UserID, "logout_all")
	if err != nil {
		h.serverError(w, r, "auth.logout_all.fail", err, id.UserID)
		return
	}
	metrics.SessionsRevokedTotal.WithLabelValues("logout_all").Add(float64(count))
	h.auditLogoutAll(ctx, id.UserID, count, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

// ---- shared plumbing ----

// requireIdentity fetches the identity the gate attached. Routes registered
// behind the gate always have one; the check guards against miswiring.
func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (gate.Identity, bool) {
	id, ok := gate.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return gate.Identity{}, false
	}
	return id, true
}

// serverError translates an unexpected failure into a response. Deadline
// expiry maps to 408; everything else is logged with correlation fields and
// becomes an opaque 500.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, event string, err error, userID string) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusRequestTimeout, "Request timeout")
		return
	}

	args := []any{"err", err, "route", r.URL.Path}
	if userID != "" {
		args = append(args, "user_id", userID)
	}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		args = append(args, "ip", ip.String())
	}
	h.log.Error(event, args...)

	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if ip := parseForwardedIP(fwd); ip != nil {
				return ip
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			if ip := net.ParseIP(real); ip != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(strings.TrimSpace(host))
}

func parseForwardedIP(fwd string) net.IP {
	// First hop is the client.
	first := fwd
	if i := strings.IndexByte(fwd, ','); i >= 0 {
		first = fwd[:i]
	}
	return net.ParseIP(strings.TrimSpace(first))
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}
