package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/models"
)

const principalKey = "principal"

// AuthConfig holds the auth middleware configuration
type AuthConfig struct {
	JWT    *auth.JWTService
	Logger *logrus.Logger
}

// AuthRequired creates a middleware that requires a valid access token
func AuthRequired(jwt *auth.JWTService, logger *logrus.Logger) fiber.Handler {
	return AuthMiddleware(AuthConfig{JWT: jwt, Logger: logger})
}

// AuthMiddleware is the main authentication middleware
func AuthMiddleware(config AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get("Authorization"))

		// Also check for token in cookie (for web clients)
		if token == "" {
			token = c.Cookies("access_token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		principal, err := config.JWT.ValidateAccessToken(token)
		if err != nil {
			config.Logger.WithError(err).WithField("path", c.Path()).Debug("access token rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(principalKey, principal)
		c.Locals("user_id", principal.UserID)
		c.Locals("tenant_id", principal.TenantID)
		return c.Next()
	}
}

// GetPrincipal retrieves the authenticated principal from the fiber context
func GetPrincipal(c *fiber.Ctx) *models.Principal {
	if p, ok := c.Locals(principalKey).(*models.Principal); ok {
		return p
	}
	return nil
}
