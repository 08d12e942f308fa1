package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "CORS_ORIGINS", "ORACLE_MODE", "ORACLE_PROVIDER_URL",
		"ORACLE_API_KEY", "ORACLE_FETCH_TIMEOUT", "ORACLE_IDLE_TTL",
		"CODING_DEBOUNCE", "CODING_MIN_CONFIDENCE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		if had {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
	if cfg.OracleMode != OracleModeDeterministic {
		t.Errorf("OracleMode = %q, want %q", cfg.OracleMode, OracleModeDeterministic)
	}
	if cfg.CodingDebounce != 500*time.Millisecond {
		t.Errorf("CodingDebounce = %v, want 500ms", cfg.CodingDebounce)
	}
	if cfg.CodingThreshold != 0.4 {
		t.Errorf("CodingThreshold = %v, want 0.4", cfg.CodingThreshold)
	}
	if cfg.OracleIdleTTL != 30*time.Minute {
		t.Errorf("OracleIdleTTL = %v, want 30m", cfg.OracleIdleTTL)
	}
}

func TestLoadLiveModeRequiresURL(t *testing.T) {
	clearEnv(t)
	os.Setenv("ORACLE_MODE", "LIVE")
	defer os.Unsetenv("ORACLE_MODE")

	if _, err := Load(); err == nil {
		t.Error("expected error when ORACLE_MODE=LIVE without ORACLE_PROVIDER_URL")
	}

	os.Setenv("ORACLE_PROVIDER_URL", "http://localhost:9999/analyze")
	defer os.Unsetenv("ORACLE_PROVIDER_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OracleMode != OracleModeLive {
		t.Errorf("OracleMode = %q, want LIVE", cfg.OracleMode)
	}
}

func TestLoadRejectsUnknownOracleMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("ORACLE_MODE", "HYBRID")
	defer os.Unsetenv("ORACLE_MODE")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown ORACLE_MODE")
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	clearEnv(t)
	os.Setenv("CODING_MIN_CONFIDENCE", "1.5")
	defer os.Unsetenv("CODING_MIN_CONFIDENCE")

	if _, err := Load(); err == nil {
		t.Error("expected error for CODING_MIN_CONFIDENCE > 1")
	}
}

func TestCORSOriginsSplit(t *testing.T) {
	clearEnv(t)
	os.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")
	defer os.Unsetenv("CORS_ORIGINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}
