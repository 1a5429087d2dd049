package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/tajious/bmconsole/internal/api/handlers"
	"github.com/tajious/bmconsole/internal/api/router"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/console"
	"github.com/tajious/bmconsole/internal/logging"
	"github.com/tajious/bmconsole/internal/middleware"
	"github.com/tajious/bmconsole/internal/session"
	"github.com/tajious/bmconsole/internal/storage"
	"github.com/tajious/bmconsole/internal/upstream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs both the token store and the login rate limit when
	// selected.
	var redisClient *redis.Client
	if cfg.Store.Driver == config.StoreRedis {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	}

	// Initialize storage
	backend, err := storage.Open(ctx, cfg, redisClient, logger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	accounts := upstream.NewClient(cfg.Upstream, logger)

	registry := console.NewRegistry(backend, accounts, console.Options{
		IdleTimeout:   cfg.Server.IdleTimeout,
		MaxEntries:    cfg.Server.MaxSessions,
		ResendSeconds: cfg.Flow.ResendSeconds(),
	}, logger)
	go registry.Run(ctx)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "bmconsole",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.TrimSpace(cfg.Server.AllowOrigins),
		AllowCredentials: true,
	}))

	var limitStore middleware.RateLimitStore = middleware.NewMemoryStore()
	if redisClient != nil {
		limitStore = middleware.NewRedisStore(redisClient)
	}

	authMiddleware := middleware.NewAuthMiddleware(
		session.NewRefresher(accounts, cfg.Flow.RefreshLeeway, logger),
		cfg.Server.LoadWait,
		logger,
	)

	// Initialize router
	apiRouter := router.NewRouter(
		app,
		handlers.NewLoginHandler(logger),
		handlers.NewSessionHandler(accounts, logger),
		handlers.NewAreaHandler(),
		middleware.Session(registry, middleware.SessionConfig{
			CookieName: cfg.Server.SessionCookie,
			Secure:     cfg.Server.Production(),
		}),
		authMiddleware,
		middleware.NewRateLimiter(limitStore, cfg.RateLimit, logger),
	)

	// Setup routes
	apiRouter.SetupRoutes()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("console starting", "addr", cfg.Server.Address(), "store", cfg.Store.Driver)
	if err := app.Listen(cfg.Server.Address()); err != nil {
		logger.Error("server stopped", "error", err)
	}

	registry.Close()
	if err := backend.Close(); err != nil {
		logger.Warn("close token store", "error", err)
	}
}
