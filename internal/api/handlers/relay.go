package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/api/middleware"
	apimodels "github.com/agentx/liveassist/internal/api/models"
	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/relay"
	"github.com/agentx/liveassist/internal/services"
)

const (
	localRelaySession = "relay_session"
	localConversation = "relay_conversation_id"
	localRelayLease   = "relay_lease"
)

// RelayHandler issues relay tokens and serves the audio relay websocket.
type RelayHandler struct {
	ctx context.Context
	svc *services.Services
}

// NewRelayHandler creates a relay handler. Sessions end when ctx is cancelled.
func NewRelayHandler(ctx context.Context, svc *services.Services) *RelayHandler {
	return &RelayHandler{ctx: ctx, svc: svc}
}

// IssueToken handles POST /api/v1/relay/token
func (h *RelayHandler) IssueToken(c *fiber.Ctx) error {
	var req apimodels.RelayTokenRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	token, expiresAt, err := h.svc.JWT.IssueRelayToken(middleware.GetPrincipal(c), req.ConversationID)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		h.svc.Logger.WithError(err).Error("failed to issue relay token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to issue relay token",
		})
	}

	return c.JSON(apimodels.RelayTokenResponse{
		Token:            token,
		ExpiresInSeconds: int(h.svc.JWT.RelayTTL().Seconds()),
		ExpiresAt:        expiresAt.UTC(),
	})
}

// Guard authorizes /ws/relay before the upgrade. Nothing is upgraded unless
// the relay token verifies and the conversation is free. Rejected handshakes
// close the connection.
func (h *RelayHandler) Guard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		c.Context().SetConnectionClose()
		return fiber.ErrUpgradeRequired
	}

	session, err := h.svc.JWT.VerifyRelayToken(c.Query("token"))
	if err != nil {
		h.svc.Logger.WithError(err).Debug("relay token rejected")
		return reject(c, fiber.StatusUnauthorized, "Valid relay token required")
	}

	// Query values are only valid during the request; the session outlives it.
	conversationID := utils.CopyString(c.Query("conversation_id"))
	if conversationID == "" {
		return reject(c, fiber.StatusUnauthorized, "conversation_id is required")
	}
	if session.ConversationID != "" && session.ConversationID != conversationID {
		return reject(c, fiber.StatusForbidden, "Relay token is bound to another conversation")
	}

	lease, err := h.svc.Registry.Acquire(c.UserContext(), conversationID)
	if err != nil {
		if errors.Is(err, relay.ErrConversationBusy) {
			return reject(c, fiber.StatusConflict, "Conversation already has an active relay session")
		}
		h.svc.Logger.WithError(err).Error("failed to acquire relay lease")
		return reject(c, fiber.StatusServiceUnavailable, "Relay temporarily unavailable")
	}

	c.Locals(localRelaySession, session)
	c.Locals(localConversation, conversationID)
	c.Locals(localRelayLease, lease)

	err = c.Next()

	// The relay session owns the lease only once the handshake switched
	// protocols; otherwise Relay never runs and nobody else would release it.
	if err != nil || c.Response().StatusCode() != fiber.StatusSwitchingProtocols {
		c.Context().SetConnectionClose()
		if releaseErr := lease.Release(context.Background()); releaseErr != nil {
			h.svc.Logger.WithError(releaseErr).WithField("conversation_id", conversationID).
				Warn("failed to release relay lease after rejected handshake")
		}
	}
	return err
}

func reject(c *fiber.Ctx, status int, message string) error {
	c.Context().SetConnectionClose()
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// Relay runs one relay session on an upgraded connection.
func (h *RelayHandler) Relay(conn *websocket.Conn) {
	session, _ := conn.Locals(localRelaySession).(*auth.RelaySession)
	conversationID, _ := conn.Locals(localConversation).(string)
	lease, _ := conn.Locals(localRelayLease).(relay.Lease)
	if session == nil || conversationID == "" {
		_ = conn.Close()
		return
	}

	relaySession := relay.NewSession(relay.SessionConfig{
		ConversationID:    conversationID,
		TenantID:          session.TenantID,
		SubjectID:         session.SubjectID,
		KeepAliveInterval: h.svc.Config.Speech.KeepAliveInterval,
	}, conn, h.svc.Speech, h.svc.Transcripts, lease, h.svc.Logger)

	if err := relaySession.Run(h.ctx); err != nil {
		h.svc.Logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"user_id":         session.SubjectID,
		}).Warn("relay session ended with error")
	}
}
