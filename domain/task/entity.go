package task

import (
	"math/rand/v2"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status represents the progress state of a task.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Known categories. The store accepts any category string.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryShopping = "shopping"
	CategoryHealth   = "health"
	CategoryLearning = "learning"
	CategoryFinance  = "finance"
	CategoryHome     = "home"
	CategoryOther    = "other"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Defaults applied on creation when a field is missing.
const (
	DefaultCategory = CategoryWork
	DefaultPriority = PriorityMedium
	DefaultStatus   = StatusNotStarted
)

// FilterAll is the filter value that disables category or status filtering.
const FilterAll = "all"

// Palette is the fixed set of card colours a task is assigned from.
var Palette = []string{
	"#6366f1", "#10b981", "#f59e0b", "#ef4444", "#8b5cf6",
	"#3b82f6", "#ec4899", "#14b8a6", "#f97316", "#64748b",
}

// Task is the single persisted entity: one to-do item.
type Task struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	Status      Status     `json:"status,omitempty"`
	Color       string     `json:"color"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsCompleted reports whether the task is in the completed state.
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Capabilities toggles the optional behaviours of the service.
type Capabilities struct {
	// StatusField enables the status attribute, its filter and its statistics.
	StatusField bool
	// CompletedAtTracking stamps and clears completedAt on status transitions.
	CompletedAtTracking bool
	// MetricsEnabled exposes Prometheus metrics and counts task events.
	MetricsEnabled bool
}

// DefaultCapabilities returns the full feature set.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		StatusField:         true,
		CompletedAtTracking: true,
		MetricsEnabled:      true,
	}
}

// NewID returns a fresh 24-character hex identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is a structurally valid identifier.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// RandomColor picks a colour from Palette.
func RandomColor() string {
	return Palette[rand.IntN(len(Palette))]
}

// SampleTasks returns the seed data inserted into an empty collection.
func SampleTasks(now time.Time) []*Task {
	completedAt := now
	return []*Task{
		{
			ID:          NewID(),
			Name:        "Welcome to TaskFlow!",
			Description: "This is your first task. You can edit or delete it.",
			Color:       "#6366f1",
			Category:    CategoryWork,
			Priority:    PriorityMedium,
			Status:      StatusNotStarted,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          NewID(),
			Name:        "Plan weekly goals",
			Description: "Set objectives for the upcoming week",
			Color:       "#10b981",
			Category:    CategoryPersonal,
			Priority:    PriorityHigh,
			Status:      StatusInProgress,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          NewID(),
			Name:        "Grocery shopping",
			Description: "Milk, eggs, bread, fruits, and vegetables",
			Color:       "#f59e0b",
			Category:    CategoryShopping,
			Priority:    PriorityLow,
			Status:      StatusCompleted,
			CreatedAt:   now,
			UpdatedAt:   now,
			CompletedAt: &completedAt,
		},
		{
			ID:          NewID(),
			Name:        "Learn Kubernetes basics",
			Description: "Complete the Kubernetes fundamentals course",
			Color:       "#8b5cf6",
			Category:    CategoryLearning,
			Priority:    PriorityMedium,
			Status:      StatusInProgress,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}
