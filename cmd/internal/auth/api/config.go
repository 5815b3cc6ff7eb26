package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax      int
	LoginIPWindow   time.Duration
	LoginIDMax      int
	LoginIDWindow   time.Duration
	RefreshIPMax    int
	RefreshIPWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:      envBool("AGORA_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:    envInt64("AGORA_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:      envInt("AGORA_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:   envDuration("AGORA_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginIDMax:      envInt("AGORA_AUTH_LOGIN_ID_MAX", 5),
		LoginIDWindow:   envDuration("AGORA_AUTH_LOGIN_ID_WINDOW", 15*time.Minute),
		RefreshIPMax:    envInt("AGORA_AUTH_REFRESH_IP_MAX", 60),
		RefreshIPWindow: envDuration("AGORA_AUTH_REFRESH_IP_WINDOW", 5*time.Minute),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
