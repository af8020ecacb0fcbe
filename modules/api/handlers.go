package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/example/taskflow/modules/task"
	"github.com/gofiber/fiber/v2"
)

// User-facing messages.
const (
	msgCreated     = "Task created successfully"
	msgUpdated     = "Task updated successfully"
	msgDeleted     = "Task deleted successfully"
	msgInitialized = "Database initialized successfully"

	errNameRequired = "Task title is required"
	errInvalidID    = "Invalid task ID"
	errNotFound     = "Task not found"
	errInvalidBody  = "Invalid request body"
	errCreate       = "Failed to create task"
	errList         = "Failed to fetch tasks"
	errGet          = "Failed to fetch task"
	errUpdate       = "Failed to update task"
	errDelete       = "Failed to delete task"
	errStats        = "Failed to fetch stats"
	errInit         = "Failed to initialize database"
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes() {
	m.app.Get("/health", m.healthHandler)

	api := m.app.Group("/api")
	api.Get("/health", m.healthHandler)

	items := api.Group("/items")
	items.Post("/", m.createTask)
	items.Get("/", m.listTasks)
	items.Get("/:id", m.getTask)
	items.Put("/:id", m.updateTask)
	items.Delete("/:id", m.deleteTask)

	api.Get("/stats", m.getStats)
	api.Post("/init", m.initialize)
}

// healthHandler handles GET /health and GET /api/health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	now := time.Now()
	if m.cfg.HealthMode == HealthModeStatic {
		return c.JSON(HealthResponse{Status: "healthy", Timestamp: now})
	}

	if err := m.tasks.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:    "unhealthy",
			Timestamp: now,
			Database:  "disconnected",
			Error:     err.Error(),
		})
	}
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: now,
		Database:  "connected",
	})
}

// createTask handles POST /api/items.
func (m *Module) createTask(c *fiber.Ctx) error {
	var req task.CreateTaskRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	t, err := m.tasks.Create(c.UserContext(), req)
	if err != nil {
		return m.writeError(c, err, errCreate)
	}

	return c.Status(fiber.StatusCreated).JSON(ItemResponse{
		Message: msgCreated,
		Item:    t,
		Success: true,
	})
}

// listTasks handles GET /api/items.
func (m *Module) listTasks(c *fiber.Ctx) error {
	result, err := m.tasks.List(c.UserContext(), task.ListFilter{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return m.writeError(c, err, errList)
	}

	return c.JSON(ListResponse{
		Items:   result.Items,
		Count:   result.Count,
		Total:   result.Total,
		Success: true,
	})
}

// getTask handles GET /api/items/:id.
func (m *Module) getTask(c *fiber.Ctx) error {
	t, err := m.tasks.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.writeError(c, err, errGet)
	}
	return c.JSON(ItemResponse{Item: t, Success: true})
}

// updateTask handles PUT /api/items/:id.
func (m *Module) updateTask(c *fiber.Ctx) error {
	var req task.UpdateTaskRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	t, err := m.tasks.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return m.writeError(c, err, errUpdate)
	}

	return c.JSON(ItemResponse{
		Message: msgUpdated,
		Item:    t,
		Success: true,
	})
}

// deleteTask handles DELETE /api/items/:id.
func (m *Module) deleteTask(c *fiber.Ctx) error {
	if err := m.tasks.Delete(c.UserContext(), c.Params("id")); err != nil {
		return m.writeError(c, err, errDelete)
	}
	return c.JSON(MessageResponse{Message: msgDeleted, Success: true})
}

// getStats handles GET /api/stats.
func (m *Module) getStats(c *fiber.Ctx) error {
	stats, err := m.tasks.Stats(c.UserContext())
	if err != nil {
		return m.writeError(c, err, errStats)
	}
	return c.JSON(StatsResponse{Stats: stats, Success: true})
}

// initialize handles POST /api/init.
func (m *Module) initialize(c *fiber.Ctx) error {
	result, err := m.tasks.Initialize(c.UserContext())
	if err != nil {
		return m.writeError(c, err, errInit)
	}
	return c.JSON(InitResponse{
		Message:    msgInitialized,
		InitResult: result,
		Success:    true,
	})
}

// writeError maps task errors to status codes. Anything unclassified is a 500 carrying fallback.
func (m *Module) writeError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, task.ErrNameRequired):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: errNameRequired})
	case errors.Is(err, task.ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: errInvalidID})
	case errors.Is(err, task.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: errNotFound})
	}

	m.logger.Error(fallback, "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   fallback,
		Details: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   errInvalidBody,
		Details: err.Error(),
	})
}

// parseBody decodes the request body into out. An empty body leaves out untouched,
// and a body without a content type is read as JSON.
func parseBody(c *fiber.Ctx, out any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if len(c.Request().Header.ContentType()) == 0 {
		return json.Unmarshal(body, out)
	}
	return c.BodyParser(out)
}
