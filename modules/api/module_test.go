package api

import (
	"context"
	"testing"

	domain "github.com/example/taskflow/domain/task"
)

func TestNewModule_Defaults(t *testing.T) {
	m := NewModule(Config{}, setupTestService(t, domain.DefaultCapabilities()), &mockLogger{})

	if m.Name() != "api" {
		t.Errorf("Name() = %q, want %q", m.Name(), "api")
	}
	if m.cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", m.cfg.Port)
	}
	if m.cfg.HealthMode != HealthModeActive {
		t.Errorf("HealthMode = %q, want %q", m.cfg.HealthMode, HealthModeActive)
	}
	if m.GetApp() == nil {
		t.Fatal("GetApp() returned nil")
	}
}

func TestModule_HealthBeforeStart(t *testing.T) {
	m := NewModule(Config{}, setupTestService(t, domain.DefaultCapabilities()), &mockLogger{})

	if status := m.Health(context.Background()); status.Healthy {
		t.Error("Health().Healthy = true before Start")
	}
}

func TestRequestIDGenerator(t *testing.T) {
	gen := requestIDGenerator()
	a, b := gen(), gen()
	if len(a) != 21 {
		t.Errorf("len(id) = %d, want 21", len(a))
	}
	if a == b {
		t.Errorf("generator returned the same id twice: %q", a)
	}
}
