package task

import (
	"time"

	domain "github.com/example/taskflow/domain/task"
)

// CreateTaskRequest is the validated input of a create call.
type CreateTaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Color       string `json:"color"`
}

// UpdateTaskRequest is a partial update. Nil fields are left unchanged.
// The identifier and creation time are not part of it and cannot be modified.
type UpdateTaskRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	Color       *string `json:"color"`
}

// CompletedAtChange selects how an update changes completedAt.
type CompletedAtChange int

const (
	// CompletedAtKeep leaves completedAt as stored.
	CompletedAtKeep CompletedAtChange = iota
	// CompletedAtStamp sets completedAt to the update time unless it is already set.
	CompletedAtStamp
	// CompletedAtClear removes completedAt.
	CompletedAtClear
)

// TaskPatch is a validated partial update. A Store applies it to one task atomically.
type TaskPatch struct {
	Name        *string
	Description *string
	Category    *string
	Priority    *string
	Color       *string
	Status      *domain.Status
	CompletedAt CompletedAtChange
	// Now is the update time. updatedAt becomes the later of Now and the stored value.
	Now time.Time
}

// Apply merges p into t the same way a Store applies it to the stored task.
func (p TaskPatch) Apply(t *domain.Task) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Status != nil {
		t.Status = *p.Status
	}

	switch p.CompletedAt {
	case CompletedAtStamp:
		if t.CompletedAt == nil {
			stamp := p.Now
			t.CompletedAt = &stamp
		}
	case CompletedAtClear:
		t.CompletedAt = nil
	}

	if p.Now.After(t.UpdatedAt) {
		t.UpdatedAt = p.Now
	}
}

// ListFilter narrows a list query. Empty values and "all" disable a filter.
type ListFilter struct {
	Category string
	Status   string
	Search   string
}

// ListResult holds a filtered task list and the unfiltered collection size.
type ListResult struct {
	Items []*domain.Task
	Count int
	Total int64
}

// GroupCount is one bucket of a group-by count.
type GroupCount struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// LatestItem is the summary of a recently created task.
type LatestItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats aggregates the collection.
type Stats struct {
	TotalItems    int64        `json:"totalItems"`
	Categories    []GroupCount `json:"categories"`
	PriorityStats []GroupCount `json:"priorityStats"`
	StatusStats   []GroupCount `json:"statusStats,omitempty"`
	LatestItems   []LatestItem `json:"latestItems"`
	Collections   []string     `json:"collections"`
}

// InitResult reports what an initialize call did.
type InitResult struct {
	// TasksCount is the number of tasks present before seeding.
	TasksCount       int64 `json:"tasksCount"`
	Inserted         int   `json:"inserted"`
	CollectionExists bool  `json:"collectionExists"`
}
