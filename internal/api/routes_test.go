package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/tcg-pricing/internal/metrics"
)

func newApp(checks map[string]HealthChecker) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, checks)
	return app
}

func TestHealth_OK(t *testing.T) {
	app := newApp(map[string]HealthChecker{
		"store": CheckFunc(func(context.Context) error { return nil }),
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["store"])
}

func TestHealth_Degraded(t *testing.T) {
	app := newApp(map[string]HealthChecker{
		"store": CheckFunc(func(context.Context) error { return errors.New("postgres ping failed") }),
		"nats":  CheckFunc(func(context.Context) error { return nil }),
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "postgres ping failed", body.Checks["store"])
	assert.Equal(t, "ok", body.Checks["nats"])
}

func TestMetrics_Exposed(t *testing.T) {
	metrics.IncItem("pokemon", "priced")
	app := newApp(nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pricing_items_processed_total")
}
