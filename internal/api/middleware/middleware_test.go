package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/models"
)

func newJWT() *auth.JWTService {
	return auth.NewJWTService("middleware-secret", "liveassist", 5*time.Minute)
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := newJWT()
	logger, _ := logtest.NewNullLogger()

	app := fiber.New()
	app.Get("/me", AuthRequired(jwtService, logger), func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		return c.SendString(p.UserID + "@" + p.TenantID)
	})

	agent, err := jwtService.GenerateAccessToken(models.Principal{UserID: "u1", TenantID: "t1", Role: models.RoleAgent})
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+agent)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: agent})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+agent+"x")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAPIRateLimitPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	}, APIRateLimit(2, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	get := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, get("u1"))
	assert.Equal(t, fiber.StatusNoContent, get("u1"))
	assert.Equal(t, fiber.StatusTooManyRequests, get("u1"))
	assert.Equal(t, fiber.StatusNoContent, get("u2"))
}

func TestAuditMiddlewareRedactsTokens(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	app := fiber.New()
	app.Use(AuditMiddleware(AuditConfig{Logger: logger, SkipPaths: []string{"/api/v1/health"}}))
	app.Get("/ws/relay", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).SendString("nope")
	})
	app.Get("/api/v1/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/relay?token=secret-value&conversation_id=c1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "relay.connect", entry.Data["action"])
	assert.Equal(t, 401, entry.Data["status"])
	assert.Equal(t, "conversation_id=c1&token=%5BREDACTED%5D", entry.Data["query"])
	assert.NotContains(t, entry.Data["query"], "secret-value")
}

func TestDetermineAction(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{fiber.MethodPost, "/api/v1/relay/token", "relay_token.issue"},
		{fiber.MethodGet, "/ws/relay", "relay.connect"},
		{fiber.MethodGet, "/api/v1/conversations/c1/assist/stream", "assist.subscribe"},
		{fiber.MethodGet, "/api/v1/conversations/c1/transcript", "transcript.read"},
		{fiber.MethodGet, "/api/v1/health", "health.read"},
		{fiber.MethodDelete, "/x", "delete./x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, determineAction(tt.method, tt.path), tt.path)
	}
}

func TestRedactQueryUnparseable(t *testing.T) {
	assert.Equal(t, "[unparseable]", redactQuery("a=%zz", DefaultSensitiveParams))
}
