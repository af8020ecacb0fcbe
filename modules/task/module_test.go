package task

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"github.com/example/taskflow/modules/cache"
)

func unreachableDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing", "dir", "tasks.db")
}

func TestModule_Name(t *testing.T) {
	m := NewModule(ModuleConfig{}, &mockLogger{})
	if m.Name() != "task" {
		t.Errorf("Name() = %q, want %q", m.Name(), "task")
	}
}

func TestModule_DefaultConnectTimeout(t *testing.T) {
	m := NewModule(ModuleConfig{}, &mockLogger{})
	if m.cfg.Store.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", m.cfg.Store.ConnectTimeout)
	}
}

func TestModule_StartStop(t *testing.T) {
	m := NewModule(ModuleConfig{
		Store:        StoreConfig{DSN: filepath.Join(t.TempDir(), "tasks.db")},
		Strict:       true,
		Capabilities: domain.DefaultCapabilities(),
	}, &mockLogger{})
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	health := m.Health(ctx)
	if !health.Healthy {
		t.Errorf("Health().Healthy = false, message = %q", health.Message)
	}
	if health.Details["database"] != "connected" {
		t.Errorf("Health().Details[database] = %v, want connected", health.Details["database"])
	}

	task, err := m.Service().Create(ctx, CreateTaskRequest{Name: "through the module"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Service().Get(ctx, task.ID); err != nil {
		t.Errorf("Get() error = %v", err)
	}

	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := m.Service().List(ctx, ListFilter{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("List() after Stop error = %v, want ErrStoreUnavailable", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestModule_Start_Strict(t *testing.T) {
	m := NewModule(ModuleConfig{
		Store:        StoreConfig{DSN: unreachableDSN(t)},
		Strict:       true,
		Capabilities: domain.DefaultCapabilities(),
	}, &mockLogger{})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want connection failure in strict mode")
	}
}

func TestModule_Start_Degraded(t *testing.T) {
	m := NewModule(ModuleConfig{
		Store:        StoreConfig{DSN: unreachableDSN(t)},
		Strict:       false,
		Capabilities: domain.DefaultCapabilities(),
	}, &mockLogger{})
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v, want nil in degraded mode", err)
	}

	health := m.Health(ctx)
	if health.Healthy {
		t.Error("Health().Healthy = true, want false when degraded")
	}
	if health.Details["database"] != "disconnected" {
		t.Errorf("Health().Details[database] = %v, want disconnected", health.Details["database"])
	}
	if _, ok := health.Details["startup_error"]; !ok {
		t.Error("Health().Details missing startup_error")
	}

	if _, err := m.Service().Create(ctx, CreateTaskRequest{Name: "x"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Create() error = %v, want ErrStoreUnavailable", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestModule_Start_UnsupportedScheme(t *testing.T) {
	for _, strict := range []bool{true, false} {
		m := NewModule(ModuleConfig{
			Store:  StoreConfig{DSN: "mysql://root@localhost/tasks"},
			Strict: strict,
		}, &mockLogger{})
		if err := m.Start(context.Background()); !errors.Is(err, ErrUnsupportedStore) {
			t.Errorf("Start(strict=%v) error = %v, want ErrUnsupportedStore", strict, err)
		}
	}
}

func TestModule_EmitEvents(t *testing.T) {
	m := NewModule(ModuleConfig{}, &mockLogger{})
	if got := len(m.EmitEvents()); got != 5 {
		t.Errorf("len(EmitEvents()) = %d, want 5", got)
	}
}

func TestModule_SetPlugin(t *testing.T) {
	m := NewModule(ModuleConfig{}, &mockLogger{})

	m.SetPlugin("other", cache.NewPluginModule("localhost:6379", "", 0))
	if m.service.currentCache() != nil {
		t.Error("cache set from a plugin with an unrelated alias")
	}

	m.SetPlugin("cache", cache.NewPluginModule("localhost:6379", "", 0))
	if m.service.currentCache() == nil {
		t.Error("cache not set from the cache plugin")
	}
}
