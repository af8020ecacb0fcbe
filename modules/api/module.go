// Package api serves the task HTTP API with Fiber.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"github.com/example/taskflow/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	nanoid "github.com/jaevor/go-nanoid"
)

// Health modes.
const (
	// HealthModeActive pings the store and answers 503 when it is unreachable.
	HealthModeActive = "active"
	// HealthModeStatic always reports healthy.
	HealthModeStatic = "static"
)

// TaskService is the task API consumed by the handlers.
type TaskService interface {
	Create(ctx context.Context, req task.CreateTaskRequest) (*domain.Task, error)
	List(ctx context.Context, filter task.ListFilter) (*task.ListResult, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	Update(ctx context.Context, id string, req task.UpdateTaskRequest) (*domain.Task, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*task.Stats, error)
	Initialize(ctx context.Context) (*task.InitResult, error)
	Ping(ctx context.Context) error
}

// MetricsProvider instruments requests and serves the collected metrics.
type MetricsProvider interface {
	Middleware() fiber.Handler
	Handler() fiber.Handler
}

// Config configures the HTTP server.
type Config struct {
	Port       int
	HealthMode string
	// StaticDir serves a frontend from this directory when set.
	StaticDir string
}

// Option customizes the module.
type Option func(*Module)

// WithMetrics exposes GET /metrics and records every request after it.
func WithMetrics(p MetricsProvider) Option {
	return func(m *Module) {
		m.metrics = p
	}
}

// WithRateLimiter installs a rate limiting middleware in front of the routes.
func WithRateLimiter(h fiber.Handler) Option {
	return func(m *Module) {
		m.rateLimiter = h
	}
}

// Module provides the HTTP API.
type Module struct {
	app         *fiber.App
	cfg         Config
	tasks       TaskService
	metrics     MetricsProvider
	rateLimiter fiber.Handler
	logger      types.Logger
	startTime   time.Time
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the API module and configures its routes.
func NewModule(cfg Config, tasks TaskService, logger types.Logger, opts ...Option) *Module {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.HealthMode == "" {
		cfg.HealthMode = HealthModeActive
	}

	m := &Module{
		cfg:    cfg,
		tasks:  tasks,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "TaskFlow API",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(requestid.New(requestid.Config{
		Generator: requestIDGenerator(),
	}))
	m.app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))
	m.app.Use(cors.New())

	if m.metrics != nil {
		m.app.Get("/metrics", m.metrics.Handler())
		m.app.Use(m.metrics.Middleware())
	}
	if m.rateLimiter != nil {
		m.app.Use(m.rateLimiter)
	}

	m.setupRoutes()

	if cfg.StaticDir != "" {
		m.app.Static("/", cfg.StaticDir)
	}
	m.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Not found"})
	})

	return m
}

func requestIDGenerator() func() string {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return utils.UUIDv4
	}
	return gen
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Start starts the HTTP server.
func (m *Module) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", m.cfg.Port)

	errChan := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		m.startTime = time.Now()
		log.Printf("[api] HTTP server listening on %s", addr)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for in-flight requests and shuts the server down.
func (m *Module) Stop(ctx context.Context) error {
	log.Println("[api] Shutting down HTTP server...")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	log.Println("[api] HTTP server stopped")
	return nil
}

// Health reports whether the server is running.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.startTime.IsZero() {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"port":        m.cfg.Port,
			"health_mode": m.cfg.HealthMode,
			"uptime":      time.Since(m.startTime).Round(time.Second).String(),
		},
	}
}

// errorHandler renders errors that escaped the handlers.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if code == fiber.StatusNotFound {
		message = "Not found"
	}

	return c.Status(code).JSON(ErrorResponse{Error: message})
}

// GetApp returns the Fiber app (for testing).
func (m *Module) GetApp() *fiber.App {
	return m.app
}
