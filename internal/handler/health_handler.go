package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps lists the dependencies checked by /readyz. A nil Redis client is
// reported as disabled and does not fail readiness.
type HealthDeps struct {
	SQL   *sql.DB
	Redis *redis.Client
	Blob  Pinger
	Queue Pinger
}

func RegisterHealthRoutes(app fiber.Router, deps HealthDeps) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(deps))
}

// RegisterMetricsRoute exposes a Prometheus handler at /metrics.
func RegisterMetricsRoute(app fiber.Router, metrics http.Handler) {
	if metrics == nil {
		return
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(deps HealthDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{}
		ready := true

		record := func(name string, err error) {
			if err != nil {
				checks[name] = "down"
				ready = false
				return
			}
			checks[name] = "ok"
		}

		if deps.SQL != nil {
			record("postgres", deps.SQL.PingContext(ctx))
		} else {
			record("postgres", errNotConfigured)
		}

		if deps.Redis != nil {
			record("redis", deps.Redis.Ping(ctx).Err())
		} else {
			checks["redis"] = "disabled"
		}

		if deps.Blob != nil {
			record("blob", deps.Blob.Ping(ctx))
		}

		if deps.Queue != nil {
			record("rabbitmq", deps.Queue.Ping(ctx))
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

var errNotConfigured = errors.New("not configured")
