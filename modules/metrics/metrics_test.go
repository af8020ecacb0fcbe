package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/taskflow/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockLogger implements types.Logger for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func newTestApp(m *Module) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", m.Handler())
	app.Use(m.Middleware())
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		return c.SendString(c.Params("id"))
	})
	app.Post("/items", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "bad")
	})
	return app
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	m := NewModule(&mockLogger{})
	app := newTestApp(m)

	for _, path := range []string{"/items/1", "/items/2", "/boom"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatalf("app.Test(%s) error = %v", path, err)
		}
		resp.Body.Close()
	}

	tests := []struct {
		route  string
		status string
		want   float64
	}{
		{"/items/:id", "200", 2},
		{"/boom", "400", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", tt.route, tt.status))
		if got != tt.want {
			t.Errorf("requests_total{route=%q,status_code=%q} = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.requestDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestMiddleware_LabelsSurviveLaterRequests(t *testing.T) {
	m := NewModule(&mockLogger{})
	app := newTestApp(m)

	resp, err := app.Test(httptest.NewRequest("POST", "/items", nil), -1)
	if err != nil {
		t.Fatalf("app.Test(POST /items) error = %v", err)
	}
	resp.Body.Close()

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/items/abcdef", nil), -1)
		if err != nil {
			t.Fatalf("app.Test(GET) error = %v", err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/items", "201")); got != 1 {
		t.Errorf("requests_total{POST /items 201} = %v, want 1", got)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != Prefix+"http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() != "method" {
					continue
				}
				if v := label.GetValue(); v != "GET" && v != "POST" {
					t.Errorf("method label = %q, want GET or POST", v)
				}
			}
		}
	}
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := NewModule(&mockLogger{})
	app := newTestApp(m)

	resp, err := app.Test(httptest.NewRequest("GET", "/items/1", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("app.Test(/metrics) error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"taskflow_backend_http_requests_total",
		"taskflow_backend_http_request_duration_seconds_bucket",
		"taskflow_backend_go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(text, `route="/metrics"`) {
		t.Error("metrics endpoint observed itself")
	}
}

func TestEventHandlers(t *testing.T) {
	m := NewModule(&mockLogger{})
	ctx := context.Background()

	_ = m.handleTaskCreated(ctx, events.TaskCreatedEvent{TaskID: "a"}, nil)
	_ = m.handleTaskCreated(ctx, events.TaskCreatedEvent{TaskID: "b"}, nil)
	_ = m.handleTaskUpdated(ctx, events.TaskUpdatedEvent{TaskID: "a"}, nil)
	_ = m.handleTaskCompleted(ctx, events.TaskCompletedEvent{TaskID: "a"}, nil)
	_ = m.handleTaskDeleted(ctx, events.TaskDeletedEvent{TaskID: "b"}, nil)
	_ = m.handleTasksSeeded(ctx, events.TasksSeededEvent{Inserted: 4}, nil)

	tests := []struct {
		event string
		want  float64
	}{
		{"created", 2},
		{"updated", 1},
		{"completed", 1},
		{"deleted", 1},
		{"seeded", 4},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.taskEvents.WithLabelValues(tt.event)); got != tt.want {
			t.Errorf("tasks_events_total{event=%q} = %v, want %v", tt.event, got, tt.want)
		}
	}
}

func TestModule_Name(t *testing.T) {
	if got := NewModule(&mockLogger{}).Name(); got != "metrics" {
		t.Errorf("Name() = %q, want %q", got, "metrics")
	}
}
