package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Config configures the rate limiting module.
type Config struct {
	RedisAddr string
	// Requests is the number of requests allowed per client within Window.
	Requests  int
	Window    time.Duration
	KeyPrefix string
	// ExemptPaths are never limited. Nil means DefaultExemptPaths.
	ExemptPaths []string
}

// DefaultConfig returns 100 requests per minute against a local Redis.
func DefaultConfig() Config {
	return Config{
		RedisAddr:   "localhost:6379",
		Requests:    100,
		Window:      time.Minute,
		KeyPrefix:   "taskflow:ratelimit:ip:",
		ExemptPaths: DefaultExemptPaths,
	}
}

// Module owns the Redis client backing the limiter.
type Module struct {
	config  Config
	client  *redis.Client
	limiter *Limiter
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the rate limiting module. Zero config values fall back to DefaultConfig.
func NewModule(config Config) *Module {
	defaults := DefaultConfig()
	if config.RedisAddr == "" {
		config.RedisAddr = defaults.RedisAddr
	}
	if config.Requests <= 0 {
		config.Requests = defaults.Requests
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.ExemptPaths == nil {
		config.ExemptPaths = defaults.ExemptPaths
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	return &Module{
		config:  config,
		client:  client,
		limiter: NewLimiter(client, config.KeyPrefix, config.Requests, config.Window),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ratelimit"
}

// Start checks the Redis connection. An unreachable server is logged, not fatal:
// the middleware lets requests through while Redis is down.
func (m *Module) Start(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		log.Printf("[ratelimit] WARNING: Redis at %s unreachable, requests will not be limited: %v", m.config.RedisAddr, err)
		return nil
	}
	log.Printf("[ratelimit] Connected to Redis at %s (%d requests per %s)", m.config.RedisAddr, m.config.Requests, m.config.Window)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if err := m.client.Close(); err != nil {
		log.Printf("[ratelimit] Error closing Redis connection: %v", err)
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	log.Println("[ratelimit] Module stopped")
	return nil
}

// Handler returns the rate limiting middleware.
func (m *Module) Handler() fiber.Handler {
	return NewMiddleware(m.limiter, m.config.ExemptPaths)
}

// Health pings Redis.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"redis_addr": m.config.RedisAddr,
			"limit":      m.config.Requests,
			"window":     m.config.Window.String(),
		},
	}
}
