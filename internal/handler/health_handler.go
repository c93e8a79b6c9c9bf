package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests against both the durable order
// log and the fast coordinator.
type HealthHandler struct {
	dol Pinger
	fc  Pinger
}

// NewHealthHandler creates a new HealthHandler with the given durable-store
// and coordinator pingers.
func NewHealthHandler(dol, fc Pinger) *HealthHandler {
	return &HealthHandler{dol: dol, fc: fc}
}

// Check performs a health check by pinging the durable order log and the
// fast coordinator.
// Returns 200 "healthy" when both are reachable.
// Returns 200 "degraded" when the DOL is up but the coordinator is down -
// the admission pipeline keeps serving via DOL fallback, just slower.
// Returns 503 "unhealthy" when the DOL itself is unreachable, since it is
// the source of truth and nothing can be served correctly without it.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dolErr := h.dol.Ping(c.Context())
	if dolErr != nil {
		log.Error().Err(dolErr).Msg("health check failed: durable order log unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "durable order log connection failed",
		})
	}

	if fcErr := h.fc.Ping(c.Context()); fcErr != nil {
		log.Warn().Err(fcErr).Msg("health check: fast coordinator unreachable, serving degraded")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "degraded",
			"error":  "fast coordinator connection failed",
		})
	}

	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
