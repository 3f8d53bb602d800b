package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/agentx/liveassist/internal/api/middleware"
	apimodels "github.com/agentx/liveassist/internal/api/models"
	"github.com/agentx/liveassist/internal/models"
	"github.com/agentx/liveassist/internal/services"
)

const maxTranscriptLimit = 500

// GetTranscript handles GET /api/v1/conversations/:id/transcript
func GetTranscript(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := middleware.GetPrincipal(c)
		if !principal.Valid() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		limit := c.QueryInt("limit", svc.Config.Assist.RecentFragments)
		if limit <= 0 || limit > maxTranscriptLimit {
			limit = maxTranscriptLimit
		}

		conversationID := c.Params("id")
		fragments, err := svc.Transcripts.ListRecent(c.UserContext(), conversationID, principal.TenantID, limit)
		if err != nil {
			svc.Logger.WithError(err).WithField("conversation_id", conversationID).Error("failed to load transcript")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load transcript",
			})
		}
		if fragments == nil {
			fragments = []models.TranscriptFragment{}
		}

		return c.JSON(apimodels.TranscriptResponse{
			ConversationID: conversationID,
			Fragments:      fragments,
		})
	}
}
