package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AuditConfig holds audit middleware configuration
type AuditConfig struct {
	Logger          *logrus.Logger
	SkipPaths       []string // Paths to skip audit logging
	SensitiveParams []string // Query parameters to redact
}

// DefaultSensitiveParams are redacted from logged query strings.
var DefaultSensitiveParams = []string{"token", "access_token"}

// AuditMiddleware logs one structured line per request. Upgraded and streaming
// requests are logged when their handler returns, not when the stream ends.
func AuditMiddleware(config AuditConfig) fiber.Handler {
	if config.SensitiveParams == nil {
		config.SensitiveParams = DefaultSensitiveParams
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skipPath := range config.SkipPaths {
			if strings.HasPrefix(path, skipPath) {
				return c.Next()
			}
		}

		startTime := time.Now()
		err := c.Next()

		fields := logrus.Fields{
			"action":      determineAction(c.Method(), path),
			"method":      c.Method(),
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(startTime).Milliseconds(),
			"ip":          c.IP(),
		}
		if query := string(c.Request().URI().QueryString()); query != "" {
			fields["query"] = redactQuery(query, config.SensitiveParams)
		}
		if userID := c.Locals("user_id"); userID != nil {
			fields["user_id"] = userID
		}
		if tenantID := c.Locals("tenant_id"); tenantID != nil {
			fields["tenant_id"] = tenantID
		}

		entry := config.Logger.WithFields(fields)
		switch {
		case err != nil:
			entry.WithError(err).Warn("request failed")
		case c.Response().StatusCode() >= 500:
			entry.Error("request failed")
		case c.Response().StatusCode() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}

		return err
	}
}

// determineAction determines the action from HTTP method and path
func determineAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/relay/token"):
		return "relay_token.issue"
	case strings.HasPrefix(path, "/ws/relay"):
		return "relay.connect"
	case strings.HasSuffix(path, "/assist/stream"):
		return "assist.subscribe"
	case strings.HasSuffix(path, "/transcript"):
		return "transcript.read"
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 {
		resource := parts[2]
		switch method {
		case fiber.MethodGet:
			return resource + ".read"
		case fiber.MethodPost:
			return resource + ".create"
		}
	}
	return strings.ToLower(method) + "." + path
}

func redactQuery(raw string, sensitive []string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	for _, key := range sensitive {
		if values.Has(key) {
			values.Set(key, "[REDACTED]")
		}
	}
	return values.Encode()
}
