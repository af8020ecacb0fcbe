package task

import "errors"

// Domain errors for the task module.
var (
	// ErrNameRequired is returned when a task name is missing or blank.
	ErrNameRequired = errors.New("task title is required")

	// ErrInvalidID is returned when an identifier is not structurally valid.
	ErrInvalidID = errors.New("invalid task ID")

	// ErrNotFound is returned when no task matches a valid identifier.
	ErrNotFound = errors.New("task not found")

	// ErrStoreUnavailable is returned while the module runs without a store connection.
	ErrStoreUnavailable = errors.New("task store unavailable")

	// ErrUnsupportedStore is returned for connection strings no backend understands.
	ErrUnsupportedStore = errors.New("unsupported connection string")
)
