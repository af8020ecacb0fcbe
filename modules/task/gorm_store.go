package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// taskRecord is the relational row of a task.
type taskRecord struct {
	ID          string    `gorm:"primarykey;size:24"`
	Name        string    `gorm:"not null;index:idx_items_name"`
	Description string    `gorm:"not null"`
	Category    string    `gorm:"size:50;index:idx_items_category"`
	Priority    string    `gorm:"size:20;index:idx_items_priority"`
	Status      string    `gorm:"size:20"`
	Color       string    `gorm:"size:16"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;index:idx_items_created_at,sort:desc"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
	CompletedAt *time.Time
}

// TableName returns the table name for GORM.
func (taskRecord) TableName() string {
	return CollectionName
}

func toRecord(t *domain.Task) *taskRecord {
	return &taskRecord{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      string(t.Status),
		Color:       t.Color,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (r *taskRecord) toDomain() *domain.Task {
	return &domain.Task{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
		Status:      domain.Status(r.Status),
		Color:       r.Color,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// GormStore keeps tasks in a relational table through GORM.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string, debug bool) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(debug))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite allows one writer, and every :memory: connection is a separate database.
	sqlDB.SetMaxOpenConns(1)

	return newGormStore(ctx, db)
}

// NewPostgresStore connects to PostgreSQL at dsn.
func NewPostgresStore(ctx context.Context, dsn string, debug bool) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(debug))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newGormStore(ctx, db)
}

// NewGormStore wraps an already opened database.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	return newGormStore(ctx, db)
}

func newGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func gormConfig(debug bool) *gorm.Config {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}
}

func (s *GormStore) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&taskRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Insert stores a new task.
func (s *GormStore) Insert(ctx context.Context, t *domain.Task) error {
	if err := s.db.WithContext(ctx).Create(toRecord(t)).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// InsertMany stores several tasks in one statement.
func (s *GormStore) InsertMany(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	records := make([]*taskRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, toRecord(t))
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to create tasks: %w", err)
	}
	return nil
}

// FindByID retrieves a task by its ID.
func (s *GormStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var rec taskRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return rec.toDomain(), nil
}

// Find returns the tasks matching filter, newest first.
func (s *GormStore) Find(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	query := s.db.WithContext(ctx).Model(&taskRecord{})

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	ilike := s.isPostgres()
	if filter.Search != "" && ilike {
		pattern := "%" + escapeLike(filter.Search) + "%"
		query = query.Where(
			"name ILIKE ? ESCAPE '\\' OR description ILIKE ? ESCAPE '\\'",
			pattern, pattern,
		)
	}

	var records []taskRecord
	if err := query.Order("created_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := recordsToDomain(records)
	if filter.Search != "" && !ilike {
		tasks = matchSearch(tasks, filter.Search)
	}
	return tasks, nil
}

// matchSearch keeps the tasks whose name or description contains term, ignoring case.
// SQLite's LOWER only folds ASCII letters, so the comparison runs here.
func matchSearch(tasks []*domain.Task, term string) []*domain.Task {
	term = strings.ToLower(term)
	matched := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Name), term) ||
			strings.Contains(strings.ToLower(t.Description), term) {
			matched = append(matched, t)
		}
	}
	return matched
}

// Count returns the number of stored tasks.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&taskRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// Update applies patch inside a transaction and writes only the columns it changes.
// The row is locked on PostgreSQL. SQLite serializes writers on its single connection.
func (s *GormStore) Update(ctx context.Context, id string, patch TaskPatch) (*domain.Task, *domain.Task, error) {
	var before, after *domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if s.isPostgres() {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rec taskRecord
		if err := query.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to find task: %w", err)
		}

		before = rec.toDomain()
		after = rec.toDomain()
		patch.Apply(after)

		if err := tx.Model(&taskRecord{}).Where("id = ?", id).Updates(patchColumns(patch, after)).Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// patchColumns maps the columns patch touches to their values in the merged task t.
func patchColumns(patch TaskPatch, t *domain.Task) map[string]any {
	cols := map[string]any{"updated_at": t.UpdatedAt}
	if patch.Name != nil {
		cols["name"] = t.Name
	}
	if patch.Description != nil {
		cols["description"] = t.Description
	}
	if patch.Category != nil {
		cols["category"] = t.Category
	}
	if patch.Priority != nil {
		cols["priority"] = t.Priority
	}
	if patch.Color != nil {
		cols["color"] = t.Color
	}
	if patch.Status != nil {
		cols["status"] = string(t.Status)
	}
	if patch.CompletedAt != CompletedAtKeep {
		cols["completed_at"] = t.CompletedAt
	}
	return cols
}

// Delete permanently removes a task.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&taskRecord{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupCount counts tasks per value of field, largest group first.
func (s *GormStore) GroupCount(ctx context.Context, field string) ([]GroupCount, error) {
	column, err := groupColumn(field)
	if err != nil {
		return nil, err
	}

	groups := make([]GroupCount, 0)
	err = s.db.WithContext(ctx).Model(&taskRecord{}).
		Select(column + " AS id, COUNT(*) AS count").
		Group(column).
		Order("count DESC").
		Order("id ASC").
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group tasks by %s: %w", field, err)
	}
	return groups, nil
}

// Latest returns the n most recently created tasks.
func (s *GormStore) Latest(ctx context.Context, n int) ([]*domain.Task, error) {
	var records []taskRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest tasks: %w", err)
	}
	return recordsToDomain(records), nil
}

// EnsureCollection creates the table and its indexes when missing.
func (s *GormStore) EnsureCollection(ctx context.Context) (bool, error) {
	created := !s.db.WithContext(ctx).Migrator().HasTable(&taskRecord{})
	if err := s.migrate(ctx); err != nil {
		return false, err
	}
	return created, nil
}

// Collections lists the tables of the database.
func (s *GormStore) Collections(ctx context.Context) ([]string, error) {
	tables, err := s.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// Ping verifies the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

func recordsToDomain(records []taskRecord) []*domain.Task {
	tasks := make([]*domain.Task, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].toDomain())
	}
	return tasks
}

func groupColumn(field string) (string, error) {
	switch field {
	case FieldCategory, FieldPriority, FieldStatus:
		return field, nil
	default:
		return "", fmt.Errorf("cannot group tasks by %q", field)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
