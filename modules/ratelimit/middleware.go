package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// DefaultExemptPaths are never rate limited so probes and scrapers keep working.
var DefaultExemptPaths = []string{"/health", "/api/health", "/metrics"}

// allower is the limiter used by the middleware.
type allower interface {
	Allow(ctx context.Context, key string) (*Result, error)
	Limit() int
}

// NewMiddleware returns a Fiber handler limiting requests by client IP.
// Requests are let through when the limiter fails.
func NewMiddleware(limiter allower, exempt []string) fiber.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		ip := c.IP()
		if ip == "" {
			ip = "unknown"
		}

		result, err := limiter.Allow(c.UserContext(), ip)
		if err != nil {
			log.Printf("[ratelimit] Check failed for %s, allowing request: %v", ip, err)
			return c.Next()
		}

		setRateLimitHeaders(c, result, limiter.Limit())
		if !result.Allowed {
			return sendRateLimitExceeded(c, result)
		}
		return c.Next()
	}
}

func setRateLimitHeaders(c *fiber.Ctx, result *Result, limit int) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func sendRateLimitExceeded(c *fiber.Ctx, result *Result) error {
	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Set("Retry-After", strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":   "Too Many Requests",
		"details": fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter),
	})
}
