package handlers

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/agentx/liveassist/internal/api/middleware"
	"github.com/agentx/liveassist/internal/assist"
	"github.com/agentx/liveassist/internal/services"
)

// StreamSuggestions handles GET /api/v1/conversations/:id/assist/stream. The
// response is a server-sent event stream that lives until the client leaves or
// ctx is cancelled.
func StreamSuggestions(ctx context.Context, svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := middleware.GetPrincipal(c)
		if !principal.Valid() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		conversationID := utils.CopyString(c.Params("id"))
		if conversationID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Conversation ID required",
			})
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		tenantID := principal.TenantID
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			sub := assist.NewSubscription(conversationID, tenantID, svc.Transcripts, svc.Assist,
				assist.NewSSEWriter(w), svc.StreamConfig(), svc.Logger)

			log := svc.Logger.WithField("conversation_id", conversationID)
			log.Debug("suggestion stream opened")
			if err := sub.Run(ctx); err != nil {
				log.WithError(err).Debug("suggestion stream closed by client")
			}
		})

		return nil
	}
}
