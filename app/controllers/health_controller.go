package controllers

import (
	"github.com/gofiber/fiber/v2"

	"tribute-gateway/internal/pkg/database"
)

// HandleHealth answers liveness/readiness probes. Degraded means the process
// is up but the database is not reachable.
func HandleHealth(c *fiber.Ctx) error {
	if err := database.Ping(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
