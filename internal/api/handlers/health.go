package handlers

import (
	"github.com/gofiber/fiber/v2"

	apimodels "github.com/agentx/liveassist/internal/api/models"
	"github.com/agentx/liveassist/internal/services"
)

const serviceName = "liveassist"

// Health handles GET /api/v1/health
func Health(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp := apimodels.HealthResponse{
			Status:  "healthy",
			Service: serviceName,
		}
		if svc.Completions != nil {
			stats := svc.Completions.Snapshot()
			resp.Completions = &stats
		}
		if svc.Health == nil {
			return c.JSON(resp)
		}

		resp.Dependencies = svc.Health.GetAllHealth()
		if !svc.Health.Healthy() {
			resp.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		return c.JSON(resp)
	}
}
