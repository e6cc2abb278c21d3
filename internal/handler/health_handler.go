package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dcampos/wagate/internal/domain"
)

const readinessTimeout = 2 * time.Second

// SessionStatus reports the supervisor's view of the transport session.
type SessionStatus interface {
	State() domain.SessionState
	PairingCode() string
}

func RegisterHealthRoutes(app fiber.Router, session SessionStatus, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(session, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports ready only while the transport session is open. The
// redis check is skipped when the gate runs on the in-memory store.
func ReadyzHandler(session SessionStatus, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := session.State()

		sessionStatus := "ok"
		if state != domain.SessionOpen {
			sessionStatus = "down"
		}

		redisStatus := "skipped"
		var redisErr error
		if rdb != nil {
			ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
			defer cancel()
			redisErr = rdb.Ping(ctx).Err()
			redisStatus = "ok"
			if redisErr != nil {
				redisStatus = "down"
			}
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if state != domain.SessionOpen || redisErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"session": sessionStatus,
				"redis":   redisStatus,
			},
		})
	}
}
