package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Middleware records the latency and count of every request that reaches it.
// Routes registered before it, such as the metrics endpoint itself, are not observed.
func (m *Module) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		// Ctx strings point into the request buffer, which fasthttp reuses.
		route := utils.CopyString(c.Route().Path)
		if route == "" {
			route = "unknown"
		}

		labels := []string{utils.CopyString(c.Method()), route, strconv.Itoa(status)}
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}
