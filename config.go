package main

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// errMissingDSN is returned when no connection string is configured.
var errMissingDSN = errors.New("DATABASE_URL (or MONGO_URI) is not set")

// Config holds the process configuration read from the environment.
type Config struct {
	DatabaseURL string
	DBDebug     bool
	Port        int
	Strict      bool

	StatusField         bool
	CompletedAtTracking bool
	MetricsEnabled      bool

	HealthMode string
	StaticDir  string

	RedisAddr    string
	CacheEnabled bool
	CacheTTL     time.Duration

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// loadConfig reads the configuration. A missing connection string is an error.
func loadConfig() (Config, error) {
	cfg := Config{
		DatabaseURL: getEnv("DATABASE_URL", os.Getenv("MONGO_URI")),
		DBDebug:     getEnvBool("DB_DEBUG", false),
		Port:        getEnvInt("PORT", 3000),
		Strict:      getEnvBool("STRICT_STARTUP", true),

		StatusField:         getEnvBool("STATUS_FIELD", true),
		CompletedAtTracking: getEnvBool("COMPLETED_AT_TRACKING", true),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),

		HealthMode: strings.ToLower(getEnv("HEALTH_MODE", "active")),
		StaticDir:  getEnv("STATIC_DIR", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
		CacheTTL:     getEnvDuration("CACHE_TTL", 30*time.Second),

		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return cfg, errMissingDSN
	}
	if cfg.HealthMode != "active" && cfg.HealthMode != "static" {
		log.Printf("Warning: invalid HEALTH_MODE %q, using default: active", cfg.HealthMode)
		cfg.HealthMode = "active"
	}
	return cfg, nil
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
