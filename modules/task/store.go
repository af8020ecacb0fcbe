package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/taskflow/domain/task"
)

// CollectionName is the name of the task collection (or table).
const CollectionName = "items"

// Groupable fields for GroupCount.
const (
	FieldCategory = "category"
	FieldPriority = "priority"
	FieldStatus   = "status"
)

// Store is the persistence port of the task module.
// Implementations translate driver-level not-found results into ErrNotFound.
type Store interface {
	Insert(ctx context.Context, t *domain.Task) error
	InsertMany(ctx context.Context, tasks []*domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	// Find returns the matching tasks, newest first.
	Find(ctx context.Context, filter ListFilter) ([]*domain.Task, error)
	Count(ctx context.Context) (int64, error)
	// Update applies patch to the task with id in one atomic step and
	// returns the task as it was before and after.
	Update(ctx context.Context, id string, patch TaskPatch) (before, after *domain.Task, err error)
	Delete(ctx context.Context, id string) error
	// GroupCount counts tasks per value of field, largest group first.
	GroupCount(ctx context.Context, field string) ([]GroupCount, error)
	Latest(ctx context.Context, n int) ([]*domain.Task, error)
	// EnsureCollection creates the collection and its indexes when missing.
	EnsureCollection(ctx context.Context) (created bool, err error)
	Collections(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// StoreConfig selects and configures a store backend.
type StoreConfig struct {
	// DSN is a mongodb://, postgres:// or sqlite connection string.
	DSN string
	// Debug enables verbose driver logging.
	Debug bool
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// Backend names reported by StoreBackend.
const (
	BackendMongo    = "mongodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// StoreBackend returns the backend a DSN selects.
func StoreBackend(dsn string) (string, error) {
	switch {
	case dsn == "":
		return "", fmt.Errorf("%w: empty", ErrUnsupportedStore)
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return BackendMongo, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres, nil
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"), !strings.Contains(dsn, "://"):
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedStore, RedactDSN(dsn))
	}
}

// OpenStore connects to the backend selected by cfg.DSN and verifies the connection.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	backend, err := StoreBackend(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	switch backend {
	case BackendMongo:
		return NewMongoStore(ctx, cfg.DSN)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Debug)
	default:
		return NewSQLiteStore(ctx, strings.TrimPrefix(cfg.DSN, "sqlite://"), cfg.Debug)
	}
}

// RedactDSN strips credentials from a connection string for logging.
func RedactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
