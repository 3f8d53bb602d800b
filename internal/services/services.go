package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/assist"
	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/config"
	"github.com/agentx/liveassist/internal/llm"
	"github.com/agentx/liveassist/internal/relay"
	"github.com/agentx/liveassist/internal/repository"
	"github.com/agentx/liveassist/internal/repository/postgres"
	"github.com/agentx/liveassist/internal/speech"
)

// Services holds all service instances used by the HTTP layer
type Services struct {
	Config      *config.Config
	Logger      *logrus.Logger
	JWT         *auth.JWTService
	Transcripts repository.TranscriptRepository
	Registry    relay.Registry
	Speech      speech.Connector
	Assist      assist.Suggester
	Completions *llm.MetricsCompleter
	Health      *HealthMonitor
}

// NewServices wires the services. db and rc may be nil: transcripts then stay
// in memory and the relay registry in process.
func NewServices(cfg *config.Config, logger *logrus.Logger, db *sqlx.DB, rc redis.UniversalClient) (*Services, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}

	completer, err := llm.NewOpenAIClient(cfg.Assist)
	if err != nil {
		return nil, fmt.Errorf("assist completer: %w", err)
	}
	breaker := llm.NewBreakerCompleter(completer, llm.DefaultBreakerSettings(), logger)
	metered := llm.NewMetricsCompleter(breaker)

	engine := assist.NewEngine(metered, assist.NewMasker(), assist.EngineConfig{
		WindowChars:  cfg.Assist.WindowChars,
		MaxItemChars: cfg.Assist.MaxItemChars,
	}, logger)

	checks := map[string]DependencyCheck{
		"assist": func(context.Context) error {
			if breaker.State() == llm.StateOpen {
				return llm.ErrCircuitOpen
			}
			return nil
		},
	}

	var transcripts repository.TranscriptRepository
	if db != nil {
		transcripts = postgres.NewTranscriptRepository(db)
		checks["database"] = db.PingContext
	} else {
		logger.Warn("no database configured, transcripts are kept in memory")
		transcripts = repository.NewMemoryTranscriptRepository()
	}

	var registry relay.Registry
	if rc != nil {
		registry = relay.NewRedisRegistry(rc, cfg.Redis.LeaseTTL)
		checks["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
	} else {
		registry = relay.NewMemoryRegistry(cfg.Redis.LeaseTTL)
	}

	return &Services{
		Config:      cfg,
		Logger:      logger,
		JWT:         auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.RelayTokenTTL),
		Transcripts: transcripts,
		Registry:    registry,
		Speech:      speech.NewDeepgramConnector(cfg.Speech, logger),
		Assist:      engine,
		Completions: metered,
		Health:      NewHealthMonitor(checks, 30*time.Second),
	}, nil
}

// StreamConfig derives the suggestion stream settings.
func (s *Services) StreamConfig() assist.StreamConfig {
	return assist.StreamConfig{
		PollInterval:      s.Config.Assist.PollInterval,
		HeartbeatInterval: s.Config.Assist.HeartbeatInterval,
		MaxItems:          s.Config.Assist.MaxItems,
		RecentFragments:   s.Config.Assist.RecentFragments,
		RequestTimeout:    s.Config.Assist.RequestTimeout,
	}
}
