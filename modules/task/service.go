package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"github.com/example/taskflow/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	statsCacheKey = "stats"
	latestLimit   = 5
)

// StatsCache is the cache port used for aggregate statistics.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Service implements the task operations on top of a Store.
type Service struct {
	mu       sync.RWMutex
	store    Store
	storeErr error
	cache    StatsCache
	eventBus mono.EventBus

	caps    domain.Capabilities
	logger  types.Logger
	sfGroup singleflight.Group
	// statsGen changes on every invalidation. A fill started under an older value is not cached.
	statsGen atomic.Uint64
	statsMu  sync.Mutex
	now      func() time.Time
}

// NewService creates a service with no store attached.
// Every call fails with ErrStoreUnavailable until Attach is called.
func NewService(caps domain.Capabilities, logger types.Logger) *Service {
	return &Service{
		caps:   caps,
		logger: logger,
		now:    time.Now,
	}
}

// Attach sets the store used by the service.
func (s *Service) Attach(store Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
	s.storeErr = nil
}

// Detach removes the store and records why it is unavailable.
func (s *Service) Detach(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = nil
	s.storeErr = reason
}

// SetCache enables caching of statistics.
func (s *Service) SetCache(c StatsCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c
}

// SetEventBus sets the bus task events are published on.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventBus = bus
}

// Capabilities returns the enabled feature set.
func (s *Service) Capabilities() domain.Capabilities {
	return s.caps
}

func (s *Service) currentStore() (Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		if s.storeErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, s.storeErr)
		}
		return nil, ErrStoreUnavailable
	}
	return s.store, nil
}

func (s *Service) currentCache() StatsCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

func (s *Service) currentBus() mono.EventBus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventBus
}

// Create validates req, applies defaults and stores a new task.
func (s *Service) Create(ctx context.Context, req CreateTaskRequest) (*domain.Task, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &domain.Task{
		ID:          domain.NewID(),
		Name:        name,
		Description: req.Description,
		Category:    valueOr(req.Category, domain.DefaultCategory),
		Priority:    valueOr(req.Priority, domain.DefaultPriority),
		Color:       valueOr(req.Color, domain.RandomColor()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.caps.StatusField {
		t.Status = domain.Status(valueOr(req.Status, string(domain.DefaultStatus)))
		if s.caps.CompletedAtTracking && t.IsCompleted() {
			t.CompletedAt = &now
		}
	}

	if err := store.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Created task", "id", t.ID, "category", t.Category)
	s.invalidateStats(ctx)
	s.publish(func(bus mono.EventBus) error {
		return events.TaskCreatedV1.Publish(bus, events.TaskCreatedEvent{
			TaskID:    t.ID,
			Name:      t.Name,
			Category:  t.Category,
			Priority:  t.Priority,
			Status:    string(t.Status),
			CreatedAt: t.CreatedAt,
		}, nil)
	}, "TaskCreated", t.ID)

	return t, nil
}

// List returns the tasks matching filter, newest first, and the unfiltered total.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}

	filter = s.normalizeFilter(filter)

	items, err := store.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items: items,
		Count: len(items),
		Total: total,
	}, nil
}

func (s *Service) normalizeFilter(filter ListFilter) ListFilter {
	out := ListFilter{
		Category: strings.TrimSpace(filter.Category),
		Status:   strings.TrimSpace(filter.Status),
		Search:   strings.TrimSpace(filter.Search),
	}
	if out.Category == domain.FilterAll {
		out.Category = ""
	}
	if out.Status == domain.FilterAll || !s.caps.StatusField {
		out.Status = ""
	}
	return out
}

// Get returns a single task.
func (s *Service) Get(ctx context.Context, id string) (*domain.Task, error) {
	if !domain.ValidID(id) {
		return nil, ErrInvalidID
	}
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}
	return store.FindByID(ctx, id)
}

// Update applies a partial update to a task. The store merges it atomically,
// so concurrent updates of different fields do not overwrite each other.
func (s *Service) Update(ctx context.Context, id string, req UpdateTaskRequest) (*domain.Task, error) {
	if !domain.ValidID(id) {
		return nil, ErrInvalidID
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, ErrNameRequired
	}

	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}

	before, t, err := store.Update(ctx, id, s.patch(req, s.now()))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Updated task", "id", t.ID, "status", string(t.Status))
	s.invalidateStats(ctx)
	s.publish(func(bus mono.EventBus) error {
		return events.TaskUpdatedV1.Publish(bus, events.TaskUpdatedEvent{
			TaskID:    t.ID,
			Status:    string(t.Status),
			UpdatedAt: t.UpdatedAt,
		}, nil)
	}, "TaskUpdated", t.ID)

	if !before.IsCompleted() && t.IsCompleted() {
		completedAt := t.UpdatedAt
		if t.CompletedAt != nil {
			completedAt = *t.CompletedAt
		}
		s.publish(func(bus mono.EventBus) error {
			return events.TaskCompletedV1.Publish(bus, events.TaskCompletedEvent{
				TaskID:      t.ID,
				Name:        t.Name,
				CompletedAt: completedAt,
			}, nil)
		}, "TaskCompleted", t.ID)
	}

	return t, nil
}

// patch turns req into a store patch. Empty category, priority, color or status values are ignored.
func (s *Service) patch(req UpdateTaskRequest, now time.Time) TaskPatch {
	p := TaskPatch{
		Description: req.Description,
		Category:    nonEmpty(req.Category),
		Priority:    nonEmpty(req.Priority),
		Color:       nonEmpty(req.Color),
		Now:         now,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		p.Name = &name
	}

	if s.caps.StatusField && req.Status != nil && *req.Status != "" {
		status := domain.Status(*req.Status)
		p.Status = &status
		if s.caps.CompletedAtTracking {
			p.CompletedAt = CompletedAtClear
			if status == domain.StatusCompleted {
				p.CompletedAt = CompletedAtStamp
			}
		}
	}
	return p
}

// Delete permanently removes a task.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return ErrInvalidID
	}
	store, err := s.currentStore()
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Deleted task", "id", id)
	s.invalidateStats(ctx)
	s.publish(func(bus mono.EventBus) error {
		return events.TaskDeletedV1.Publish(bus, events.TaskDeletedEvent{
			TaskID:    id,
			DeletedAt: s.now(),
		}, nil)
	}, "TaskDeleted", id)

	return nil
}

// Stats aggregates the collection. Results are cached when a cache is set.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}

	cache := s.currentCache()
	if cache != nil {
		var cached Stats
		found, err := cache.Get(ctx, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("Stats cache read failed", "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	val, err, _ := s.sfGroup.Do(statsCacheKey, func() (any, error) {
		gen := s.statsGen.Load()
		stats, err := s.computeStats(ctx, store)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			s.cacheStats(ctx, cache, gen, stats)
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Stats), nil
}

// cacheStats stores stats unless an invalidation happened since gen was read.
func (s *Service) cacheStats(ctx context.Context, cache StatsCache, gen uint64, stats *Stats) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen.Load() != gen {
		return
	}
	if err := cache.Set(ctx, statsCacheKey, stats); err != nil {
		s.logger.Warn("Stats cache write failed", "error", err)
	}
}

func (s *Service) computeStats(ctx context.Context, store Store) (*Stats, error) {
	stats := &Stats{}
	var latest []*domain.Task

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalItems, err = store.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Categories, err = store.GroupCount(gctx, FieldCategory)
		return err
	})
	g.Go(func() (err error) {
		stats.PriorityStats, err = store.GroupCount(gctx, FieldPriority)
		return err
	})
	if s.caps.StatusField {
		g.Go(func() (err error) {
			stats.StatusStats, err = store.GroupCount(gctx, FieldStatus)
			return err
		})
	}
	g.Go(func() (err error) {
		latest, err = store.Latest(gctx, latestLimit)
		return err
	})
	g.Go(func() (err error) {
		stats.Collections, err = store.Collections(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.LatestItems = make([]LatestItem, 0, len(latest))
	for _, t := range latest {
		stats.LatestItems = append(stats.LatestItems, LatestItem{
			ID:        t.ID,
			Name:      t.Name,
			Category:  t.Category,
			Priority:  t.Priority,
			CreatedAt: t.CreatedAt,
		})
	}
	return stats, nil
}

// Initialize creates the collection when missing and seeds sample tasks into an empty one.
func (s *Service) Initialize(ctx context.Context) (*InitResult, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}

	created, err := store.EnsureCollection(ctx)
	if err != nil {
		return nil, err
	}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}

	result := &InitResult{
		TasksCount:       count,
		CollectionExists: !created,
	}
	if count > 0 {
		s.logger.Info("Collection already populated, skipping seed", "count", count)
		return result, nil
	}

	samples := s.sampleTasks(s.now())
	if err := store.InsertMany(ctx, samples); err != nil {
		return nil, err
	}
	result.Inserted = len(samples)

	s.logger.Info("Seeded sample tasks", "inserted", result.Inserted)
	s.invalidateStats(ctx)
	s.publish(func(bus mono.EventBus) error {
		return events.TasksSeededV1.Publish(bus, events.TasksSeededEvent{
			Inserted: result.Inserted,
			SeededAt: s.now(),
		}, nil)
	}, "TasksSeeded", "")

	return result, nil
}

func (s *Service) sampleTasks(now time.Time) []*domain.Task {
	samples := domain.SampleTasks(now)
	for _, t := range samples {
		if !s.caps.StatusField {
			t.Status = ""
		}
		if !s.caps.StatusField || !s.caps.CompletedAtTracking {
			t.CompletedAt = nil
		}
	}
	return samples
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	store, err := s.currentStore()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

func (s *Service) invalidateStats(ctx context.Context) {
	s.statsMu.Lock()
	s.statsGen.Add(1)
	s.statsMu.Unlock()
	s.sfGroup.Forget(statsCacheKey)

	cache := s.currentCache()
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("Stats cache invalidation failed", "error", err)
	}
}

// publish emits an event when a bus is set. Publishing is best-effort.
func (s *Service) publish(fn func(mono.EventBus) error, event, taskID string) {
	bus := s.currentBus()
	if bus == nil {
		return
	}
	if err := fn(bus); err != nil {
		s.logger.Warn("Failed to publish event", "event", event, "id", taskID, "error", err)
	}
}

func nonEmpty(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
