package task

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"github.com/example/taskflow/events"
	"github.com/example/taskflow/modules/cache"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// ModuleConfig configures the task module.
type ModuleConfig struct {
	Store StoreConfig
	// Strict makes Start fail when the store cannot be reached.
	// Otherwise the module starts degraded and every task call fails with ErrStoreUnavailable.
	Strict       bool
	Capabilities domain.Capabilities
}

// Module owns the task store and exposes the task service.
type Module struct {
	cfg     ModuleConfig
	service *Service
	logger  types.Logger

	mu       sync.Mutex
	store    Store
	startErr error
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
)

// NewModule creates a new task module.
func NewModule(cfg ModuleConfig, logger types.Logger) *Module {
	if cfg.Store.ConnectTimeout == 0 {
		cfg.Store.ConnectTimeout = 10 * time.Second
	}
	return &Module{
		cfg:     cfg,
		service: NewService(cfg.Capabilities, logger),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "task"
}

// Service returns the task service.
func (m *Module) Service() *Service {
	return m.service
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.service.SetEventBus(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskUpdatedV1.ToBase(),
		events.TaskCompletedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
		events.TasksSeededV1.ToBase(),
	}
}

// SetPlugin receives plugin instances from the mono framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	if cachePlugin, ok := plugin.(*cache.PluginModule); ok {
		m.service.SetCache(cachePlugin.Port())
		log.Println("[task] Cache plugin injected")
	}
}

// Start connects to the store.
func (m *Module) Start(ctx context.Context) error {
	backend, err := StoreBackend(m.cfg.Store.DSN)
	if err != nil {
		return err
	}

	store, err := OpenStore(ctx, m.cfg.Store)
	if err != nil {
		if m.cfg.Strict {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		m.mu.Lock()
		m.startErr = err
		m.mu.Unlock()
		m.service.Detach(err)
		log.Printf("[task] WARNING: database unavailable, starting degraded: %v", err)
		return nil
	}

	m.mu.Lock()
	m.store = store
	m.startErr = nil
	m.mu.Unlock()
	m.service.Attach(store)

	log.Printf("[task] Connected to %s store (%s)", backend, RedactDSN(m.cfg.Store.DSN))
	if backend == BackendMongo {
		log.Printf("[task] Using database: %s", DatabaseName(m.cfg.Store.DSN))
	}
	log.Println("[task] Module started")
	return nil
}

// Stop closes the store connection.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	store := m.store
	m.store = nil
	m.mu.Unlock()

	if store == nil {
		log.Println("[task] Module stopped")
		return nil
	}

	m.service.Detach(ErrStoreUnavailable)
	if err := store.Close(ctx); err != nil {
		log.Printf("[task] Error closing store: %v", err)
		return fmt.Errorf("failed to close store: %w", err)
	}
	log.Println("[task] Module stopped")
	return nil
}

// Health pings the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	m.mu.Lock()
	startErr := m.startErr
	m.mu.Unlock()

	if err := m.service.Ping(ctx); err != nil {
		details := map[string]any{"database": "disconnected"}
		if startErr != nil {
			details["startup_error"] = startErr.Error()
		}
		return mono.HealthStatus{
			Healthy: false,
			Message: err.Error(),
			Details: details,
		}
	}

	backend, _ := StoreBackend(m.cfg.Store.DSN)
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": "connected",
			"backend":  backend,
		},
	}
}
