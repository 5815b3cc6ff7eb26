// Package app wires the Agora auth server runtime: config, logging, stores,
// HTTP routes, metrics, and graceful shutdown.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"agora/cmd/identity"
	"agora/cmd/internal/auth/api"
	"agora/cmd/internal/auth/gate"
	"agora/cmd/internal/auth/session"
	"agora/cmd/internal/auth/throttle"
	"agora/cmd/internal/db"
	"agora/cmd/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Agora server runtime: it owns HTTP server wiring and the auth
// subsystem dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redis *redis.Client

	sessions *session.Service
	auth     *api.Handler
	gate     *gate.Gate
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	authCfg := api.LoadConfigFromEnv()

	codec, err := session.NewCodec(sessCfg)
	if err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, users, sessStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	svc := session.NewService(sessCfg, sessStore, codec)

	var rdb *redis.Client
	opts := make([]api.HandlerOption, 0, 3)
	if dbEnabled {
		opts = append(opts, api.WithAuditPool(dbPool))
	}
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts = append(opts, api.WithCounter(throttle.NewRedisCounter(rdb)))
		log.Info("throttle.redis_counter", "addr", cfg.RedisAddr)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.EmailMode), "log") {
		opts = append(opts, api.WithEmailSender(logEmailSender{log: log}))
	}

	authHandler, err := api.NewHandler(log, authCfg, sessCfg, users, svc, opts...)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = st.Close(context.Background())
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		redis:     rdb,
		sessions:  svc,
		auth:      authHandler,
		gate:      gate.New(svc, log),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.gate)

	handler := WithRequestLogging(
		WithHTTPMetrics(
			WithSecurityHeaders(
				WithCORS(mux, a.cfg),
			),
		),
		a.log,
	)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_enabled", a.dbEnabled,
	)

	samplerCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()
	go a.sampleOnlineSessions(samplerCtx, 30*time.Second)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// sampleOnlineSessions keeps the online-sessions gauge current. A sampled
// gauge tolerates store restarts and revocation races better than counters
// incremented on every transition.
func (a *App) sampleOnlineSessions(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := a.sessions.CountOnline(tickCtx, time.Now())
		cancel()
		if err != nil {
			a.log.Debug("metrics.online_sessions.sample_fail", "err", err)
			continue
		}
		metrics.OnlineSessions.Set(float64(n))
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL renders the listen address as a URL a developer can open.
// Wildcard binds are rewritten to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + port
}

// newStore decides between Postgres-backed persistence and in-memory dev stores.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, session.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, identity.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	if cfg.DBAutomigrate {
		changed, err := db.Migrate(cfg.DatabaseURL, "up")
		if err != nil {
			return nil, nil, false, nil, nil, err
		}
		if changed {
			log.Info("db.migrate.applied")
		} else {
			log.Info("db.migrate.up_to_date")
		}
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: the app owns the pool lifecycle; the stores borrow it.
	return dbStore{pool: pool}, pool, true, users, sessions, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
