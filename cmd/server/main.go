package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/agentx/liveassist/internal/api"
	"github.com/agentx/liveassist/internal/api/middleware"
	"github.com/agentx/liveassist/internal/config"
	"github.com/agentx/liveassist/internal/database"
	"github.com/agentx/liveassist/internal/logging"
	"github.com/agentx/liveassist/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Log)

	// Connect to database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	var rc redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rc = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis relay registry")
	}

	svc, err := services.NewServices(cfg, logger, db.DB, rc)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	svc.Health.Start()
	defer svc.Health.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "LiveAssist Relay",
		ErrorHandler: customErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(middleware.AuditMiddleware(middleware.AuditConfig{
		Logger:    logger,
		SkipPaths: []string{"/api/v1/health"},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
	}))

	api.SetupRoutes(ctx, app, svc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("shutting down")
		// Ends relay sessions and suggestion streams.
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("server shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.WithField("addr", addr).Info("LiveAssist relay starting")
	if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Failed to start server")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
