package cache

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/storage"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/storage/redis/v3"
)

// Defaults for the statistics cache.
const (
	DefaultPrefix = "taskflow:"
	DefaultTTL    = 30 * time.Second
)

// PluginModule provides the Redis cache as a mono plugin.
// Plugins start before and stop after regular modules.
type PluginModule struct {
	mu        sync.RWMutex
	container types.ServiceContainer
	storage   storage.Storage
	service   CacheService
	redisAddr string
	prefix    string
	ttl       time.Duration
	lenient   bool
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates a cache plugin for the Redis server at redisAddr.
// Zero prefix or ttl fall back to the defaults.
func NewPluginModule(redisAddr, prefix string, ttl time.Duration) *PluginModule {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PluginModule{
		redisAddr: redisAddr,
		prefix:    prefix,
		ttl:       ttl,
	}
}

// SetLenient makes Start succeed when Redis is unreachable.
// The cache then behaves as always empty.
func (m *PluginModule) SetLenient(lenient bool) {
	m.lenient = lenient
}

// Name returns the module name.
func (m *PluginModule) Name() string {
	return "cache"
}

// Start connects to Redis.
func (m *PluginModule) Start(ctx context.Context) error {
	host, port := parseRedisAddr(m.redisAddr)

	// redis.New panics when the server is unreachable.
	if err := dialRedis(ctx, host, port); err != nil {
		if m.lenient {
			log.Printf("[cache] WARNING: Redis at %s unreachable, caching disabled: %v", m.redisAddr, err)
			return nil
		}
		return fmt.Errorf("failed to connect to Redis at %s: %w", m.redisAddr, err)
	}

	store := redis.New(redis.Config{
		Host:     host,
		Port:     port,
		PoolSize: 10,
	})

	m.mu.Lock()
	m.storage = store
	m.service = NewCacheService(store, m.prefix, m.ttl)
	m.mu.Unlock()
	log.Printf("[cache] Connected to Redis at %s (prefix: %s, TTL: %s)", m.redisAddr, m.prefix, m.ttl)
	return nil
}

// Stop closes the Redis connection.
func (m *PluginModule) Stop(_ context.Context) error {
	m.mu.Lock()
	service := m.service
	m.service = nil
	m.storage = nil
	m.mu.Unlock()

	if service != nil {
		if err := service.Close(); err != nil {
			log.Printf("[cache] Error closing connection: %v", err)
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	log.Println("[cache] Plugin stopped")
	return nil
}

// SetContainer sets the service container for this plugin.
func (m *PluginModule) SetContainer(container types.ServiceContainer) {
	m.container = container
}

// Container returns the service container for this plugin.
func (m *PluginModule) Container() types.ServiceContainer {
	return m.container
}

// Port returns the cache API for consumers. It may be taken before Start:
// calls made while Redis is not connected behave as misses and no-ops.
func (m *PluginModule) Port() CacheService {
	return &pluginPort{m: m}
}

func (m *PluginModule) current() CacheService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.service
}

// Health probes Redis with a lookup of a missing key.
func (m *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	m.mu.RLock()
	store := m.storage
	m.mu.RUnlock()

	if store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "storage not initialized",
		}
	}

	if _, err := store.GetWithContext(ctx, m.prefix+"__health_check__"); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("health check failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"redis_addr": m.redisAddr,
			"prefix":     m.prefix,
			"ttl":        m.ttl.String(),
		},
	}
}

func dialRedis(ctx context.Context, host string, port int) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// parseRedisAddr splits "host:port", falling back to 127.0.0.1:6379.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}

// pluginPort resolves the plugin's service on every call.
type pluginPort struct {
	m *PluginModule
}

func (p *pluginPort) Get(ctx context.Context, key string, dest any) (bool, error) {
	if svc := p.m.current(); svc != nil {
		return svc.Get(ctx, key, dest)
	}
	return false, nil
}

func (p *pluginPort) Set(ctx context.Context, key string, value any) error {
	if svc := p.m.current(); svc != nil {
		return svc.Set(ctx, key, value)
	}
	return nil
}

func (p *pluginPort) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	if svc := p.m.current(); svc != nil {
		return svc.SetWithTTL(ctx, key, value, ttl)
	}
	return nil
}

func (p *pluginPort) Delete(ctx context.Context, key string) error {
	if svc := p.m.current(); svc != nil {
		return svc.Delete(ctx, key)
	}
	return nil
}

// Close is a no-op: the plugin owns the connection.
func (p *pluginPort) Close() error {
	return nil
}
