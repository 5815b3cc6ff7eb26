package api

import (
	"testing"
	"time"
)

var authEnvKeys = []string{
	"AGORA_AUTH_TRUST_PROXY",
	"AGORA_AUTH_MAX_BODY_BYTES",
	"AGORA_AUTH_LOGIN_IP_MAX",
	"AGORA_AUTH_LOGIN_IP_WINDOW",
	"AGORA_AUTH_LOGIN_ID_MAX",
	"AGORA_AUTH_LOGIN_ID_WINDOW",
	"AGORA_AUTH_REFRESH_IP_MAX",
	"AGORA_AUTH_REFRESH_IP_WINDOW",
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range authEnvKeys {
		t.Setenv(k, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.TrustProxy {
		t.Fatalf("TrustProxy default must be false")
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, 1<<20)
	}
	if cfg.LoginIPMax != 20 || cfg.LoginIPWindow != 5*time.Minute {
		t.Fatalf("login IP limits = %d/%v, want 20/5m", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
	if cfg.LoginIDMax != 5 || cfg.LoginIDWindow != 15*time.Minute {
		t.Fatalf("login identifier limits = %d/%v, want 5/15m", cfg.LoginIDMax, cfg.LoginIDWindow)
	}
	if cfg.RefreshIPMax != 60 || cfg.RefreshIPWindow != 5*time.Minute {
		t.Fatalf("refresh limits = %d/%v, want 60/5m", cfg.RefreshIPMax, cfg.RefreshIPWindow)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("AGORA_AUTH_TRUST_PROXY", "true")
	t.Setenv("AGORA_AUTH_MAX_BODY_BYTES", "4096")
	t.Setenv("AGORA_AUTH_LOGIN_IP_MAX", "50")
	t.Setenv("AGORA_AUTH_LOGIN_IP_WINDOW", "1m")
	t.Setenv("AGORA_AUTH_LOGIN_ID_MAX", "10")
	t.Setenv("AGORA_AUTH_LOGIN_ID_WINDOW", "30m")
	t.Setenv("AGORA_AUTH_REFRESH_IP_MAX", "120")
	t.Setenv("AGORA_AUTH_REFRESH_IP_WINDOW", "10m")

	cfg := LoadConfigFromEnv()

	if !cfg.TrustProxy {
		t.Fatalf("expected TrustProxy")
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("MaxBodyBytes = %d, want 4096", cfg.MaxBodyBytes)
	}
	if cfg.LoginIPMax != 50 || cfg.LoginIPWindow != time.Minute {
		t.Fatalf("login IP limits = %d/%v", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
	if cfg.LoginIDMax != 10 || cfg.LoginIDWindow != 30*time.Minute {
		t.Fatalf("login identifier limits = %d/%v", cfg.LoginIDMax, cfg.LoginIDWindow)
	}
	if cfg.RefreshIPMax != 120 || cfg.RefreshIPWindow != 10*time.Minute {
		t.Fatalf("refresh limits = %d/%v", cfg.RefreshIPMax, cfg.RefreshIPWindow)
	}
}

func TestLoadConfigFromEnv_RejectsInvalidValues(t *testing.T) {
	t.Setenv("AGORA_AUTH_TRUST_PROXY", "yep")
	t.Setenv("AGORA_AUTH_MAX_BODY_BYTES", "0")
	t.Setenv("AGORA_AUTH_LOGIN_IP_MAX", "-3")
	t.Setenv("AGORA_AUTH_LOGIN_IP_WINDOW", "soon")
	t.Setenv("AGORA_AUTH_LOGIN_ID_MAX", "many")
	t.Setenv("AGORA_AUTH_LOGIN_ID_WINDOW", "-1m")

	cfg := LoadConfigFromEnv()

	if cfg.TrustProxy {
		t.Fatalf("unparseable TrustProxy must fall back to false")
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d, want default", cfg.MaxBodyBytes)
	}
	if cfg.LoginIPMax != 20 || cfg.LoginIPWindow != 5*time.Minute {
		t.Fatalf("login IP limits = %d/%v, want defaults", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
	if cfg.LoginIDMax != 5 || cfg.LoginIDWindow != 15*time.Minute {
		t.Fatalf("login identifier limits = %d/%v, want defaults", cfg.LoginIDMax, cfg.LoginIDWindow)
	}
}
