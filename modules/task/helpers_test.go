package task

import (
	"context"
	"sync"
	"testing"

	domain "github.com/example/taskflow/domain/task"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
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

// setupTestStore creates a store on an in-memory SQLite database.
func setupTestStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := NewGormStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewGormStore() error = %v", err)
	}
	t.Cleanup(func() {
		store.Close(context.Background())
	})
	return store
}

// setupTestService creates a service backed by an in-memory store.
func setupTestService(t *testing.T, caps domain.Capabilities) (*Service, *GormStore) {
	t.Helper()
	store := setupTestStore(t)
	svc := NewService(caps, &mockLogger{})
	svc.Attach(store)
	return svc, store
}

// memoryCache is a StatsCache kept in a map.
type memoryCache struct {
	mu      sync.Mutex
	values  map[string]any
	gets    int
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]any)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*Stats)) = *(v.(*Stats))
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.values, key)
	return nil
}

func strPtr(s string) *string {
	return &s
}
