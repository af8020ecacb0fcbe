package main

import (
	"errors"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "MONGO_URI", "DB_DEBUG", "PORT", "STRICT_STARTUP",
		"STATUS_FIELD", "COMPLETED_AT_TRACKING", "METRICS_ENABLED",
		"HEALTH_MODE", "STATIC_DIR", "REDIS_ADDR", "CACHE_ENABLED", "CACHE_TTL",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_MissingDSN(t *testing.T) {
	clearEnv(t)

	if _, err := loadConfig(); !errors.Is(err, errMissingDSN) {
		t.Fatalf("loadConfig() error = %v, want %v", err, errMissingDSN)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017/taskflow")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if !cfg.Strict {
		t.Error("Strict = false, want true")
	}
	if !cfg.StatusField || !cfg.CompletedAtTracking || !cfg.MetricsEnabled {
		t.Errorf("capabilities = %+v, want all enabled", cfg)
	}
	if cfg.HealthMode != "active" {
		t.Errorf("HealthMode = %q, want active", cfg.HealthMode)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled = true, want false")
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 100/1m", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
}

func TestLoadConfig_MongoURIFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGO_URI", "mongodb://mongo:27017/taskflow")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DatabaseURL != "mongodb://mongo:27017/taskflow" {
		t.Errorf("DatabaseURL = %q, want the MONGO_URI value", cfg.DatabaseURL)
	}

	t.Setenv("DATABASE_URL", "sqlite://tasks.db")
	cfg, _ = loadConfig()
	if cfg.DatabaseURL != "sqlite://tasks.db" {
		t.Errorf("DatabaseURL = %q, want DATABASE_URL to win", cfg.DatabaseURL)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite://tasks.db")
	t.Setenv("PORT", "8080")
	t.Setenv("STRICT_STARTUP", "false")
	t.Setenv("STATUS_FIELD", "0")
	t.Setenv("COMPLETED_AT_TRACKING", "false")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("HEALTH_MODE", "STATIC")
	t.Setenv("CACHE_TTL", "5s")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Strict {
		t.Error("Strict = true, want false")
	}
	if cfg.StatusField || cfg.CompletedAtTracking || cfg.MetricsEnabled {
		t.Errorf("capabilities = %+v, want all disabled", cfg)
	}
	if cfg.HealthMode != "static" {
		t.Errorf("HealthMode = %q, want static", cfg.HealthMode)
	}
	if cfg.CacheTTL != 5*time.Second {
		t.Errorf("CacheTTL = %v, want 5s", cfg.CacheTTL)
	}
	if !cfg.RateLimitEnabled || cfg.RateLimitWindow != 10*time.Second {
		t.Errorf("rate limit = %t/%v, want true/10s", cfg.RateLimitEnabled, cfg.RateLimitWindow)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite://tasks.db")
	t.Setenv("PORT", "abc")
	t.Setenv("STRICT_STARTUP", "maybe")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("HEALTH_MODE", "deep")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if !cfg.Strict {
		t.Error("Strict = false, want the default true")
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.HealthMode != "active" {
		t.Errorf("HealthMode = %q, want active", cfg.HealthMode)
	}
}
