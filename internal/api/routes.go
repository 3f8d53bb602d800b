package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/agentx/liveassist/internal/api/handlers"
	"github.com/agentx/liveassist/internal/api/middleware"
	"github.com/agentx/liveassist/internal/services"
)

// SetupRoutes configures all API routes. Long-lived relay sessions and
// suggestion streams end when ctx is cancelled.
func SetupRoutes(ctx context.Context, app *fiber.App, svc *services.Services) {
	api := app.Group("/api/v1")

	// ========================================
	// Public routes (no authentication needed)
	// ========================================

	api.Get("/health", handlers.Health(svc))

	// ========================================
	// Protected routes (authentication required)
	// ========================================

	// Limited per principal, so the limiter runs after authentication.
	protected := api.Group("", middleware.AuthRequired(svc.JWT, svc.Logger), middleware.DefaultRateLimit())

	relayHandler := handlers.NewRelayHandler(ctx, svc)
	protected.Post("/relay/token", middleware.RelayTokenRateLimit(), relayHandler.IssueToken)

	protected.Get("/conversations/:id/assist/stream", handlers.StreamSuggestions(ctx, svc))
	protected.Get("/conversations/:id/transcript", handlers.GetTranscript(svc))

	// ========================================
	// WebSocket routes (relay token auth)
	// ========================================

	// The browser cannot set headers on a websocket handshake, so the relay
	// token travels in the query string and is checked before upgrading.
	app.Use("/ws/relay", relayHandler.Guard)
	app.Get("/ws/relay", websocket.New(relayHandler.Relay))
}
