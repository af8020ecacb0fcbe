// Package metrics exposes Prometheus metrics for the HTTP API and the task lifecycle.
package metrics

import (
	"context"
	"fmt"
	"log"

	"github.com/example/taskflow/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prefix is prepended to every exported metric name.
const Prefix = "taskflow_backend_"

// Module owns a private Prometheus registry.
type Module struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	taskEvents      *prometheus.CounterVec
	logger          types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventConsumerModule = (*Module)(nil)
)

// NewModule creates the metrics module and registers its collectors.
func NewModule(logger types.Logger) *Module {
	registry := prometheus.NewRegistry()
	reg := prometheus.WrapRegistererWithPrefix(Prefix, registry)

	m := &Module{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.1, 0.3, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status_code"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status_code"}),
		taskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_events_total",
			Help: "Task lifecycle events observed on the event bus",
		}, []string{"event"}),
		logger: logger,
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.requestsTotal,
		m.taskEvents,
	)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "metrics"
}

// RegisterEventConsumers subscribes to the task events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskUpdatedV1, m.handleTaskUpdated, m); err != nil {
		return fmt.Errorf("failed to register TaskUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCompletedV1, m.handleTaskCompleted, m); err != nil {
		return fmt.Errorf("failed to register TaskCompleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TasksSeededV1, m.handleTasksSeeded, m); err != nil {
		return fmt.Errorf("failed to register TasksSeeded consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"TaskCreated.v1", "TaskUpdated.v1", "TaskCompleted.v1", "TaskDeleted.v1", "TasksSeeded.v1"})
	return nil
}

func (m *Module) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.taskEvents.WithLabelValues("created").Inc()
	m.logger.Debug("Observed task creation", "id", event.TaskID)
	return nil
}

func (m *Module) handleTaskUpdated(_ context.Context, event events.TaskUpdatedEvent, _ *mono.Msg) error {
	m.taskEvents.WithLabelValues("updated").Inc()
	m.logger.Debug("Observed task update", "id", event.TaskID)
	return nil
}

func (m *Module) handleTaskCompleted(_ context.Context, event events.TaskCompletedEvent, _ *mono.Msg) error {
	m.taskEvents.WithLabelValues("completed").Inc()
	m.logger.Debug("Observed task completion", "id", event.TaskID)
	return nil
}

func (m *Module) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.taskEvents.WithLabelValues("deleted").Inc()
	m.logger.Debug("Observed task deletion", "id", event.TaskID)
	return nil
}

func (m *Module) handleTasksSeeded(_ context.Context, event events.TasksSeededEvent, _ *mono.Msg) error {
	m.taskEvents.WithLabelValues("seeded").Add(float64(event.Inserted))
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Module) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry returns the underlying registry.
func (m *Module) Registry() *prometheus.Registry {
	return m.registry
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[metrics] Module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[metrics] Module stopped")
	return nil
}
