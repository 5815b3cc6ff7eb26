package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, embedded migrations run against DatabaseURL before the
	// stores are constructed. Ignored in memory mode.
	DBAutomigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, AGORA_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// Redis-backed throttle counter for horizontally scaled deployments.
	// Empty addr keeps the in-process counter.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CORS is installed only when at least one origin is listed.
	// An origin may carry a single wildcard, e.g. "http://127.0.0.1:*".
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// EmailMode selects the account email sender: "noop" (default) drops
	// messages, "log" writes them to the logger for dev setups.
	EmailMode string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AGORA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("AGORA_LOG_LEVEL", "info"),
		LogFormat: EnvString("AGORA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AGORA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AGORA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AGORA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AGORA_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("AGORA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("AGORA_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("AGORA_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("AGORA_DB_MIN_CONNS", 0),
		DBAutomigrate: EnvBool("AGORA_DB_AUTOMIGRATE", false),

		ReadinessRequireDB: EnvBool("AGORA_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("AGORA_REQUIRE_TOKEN_HMAC", false),

		RedisAddr:     EnvString("AGORA_REDIS_ADDR", ""),
		RedisPassword: EnvString("AGORA_REDIS_PASSWORD", ""),
		RedisDB:       EnvIntAllowZero("AGORA_REDIS_DB", 0),

		CORSAllowedOrigins:   EnvStrings("AGORA_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("AGORA_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("AGORA_CORS_MAX_AGE_SECONDS", 300),

		EmailMode: EnvString("AGORA_EMAIL_MODE", "noop"),
	}
}
