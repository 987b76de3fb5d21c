// Package api exposes the sweeper's operational endpoints while it runs.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is implemented by dependencies that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// RegisterRoutes registers /metrics and /health. Every named check must pass
// for /health to report ok.
func RegisterRoutes(app *fiber.App, checks map[string]HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})
}
