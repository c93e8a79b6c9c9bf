package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/config"
	"github.com/fairyhunter13/scalable-coupon-system/internal/coordinator"
	"github.com/fairyhunter13/scalable-coupon-system/internal/handler"
	"github.com/fairyhunter13/scalable-coupon-system/internal/repository"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	customvalidator "github.com/fairyhunter13/scalable-coupon-system/internal/validator"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/database"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/rediscli"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	for _, w := range cfg.WarnIfDefaultCredentials() {
		log.Warn().Msg(w)
	}

	// Create context for startup
	ctx := context.Background()

	// Initialize durable order log pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to durable order log")
	}

	// Initialize fast coordinator (Redis) with retry
	redisClient, err := rediscli.NewClient(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, cfg.Redis.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to fast coordinator")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Flash Sale Purchase Engine",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	// Adds X-Request-ID header to all requests; use real UUIDs rather than
	// fiber's default fast generator so request IDs are safe to correlate
	// across services in logs and downstream traces.
	app.Use(requestid.New(requestid.Config{
		Generator: func() string { return uuid.NewString() },
	}))
	app.Use(logger.New())

	// Initialize validator with the notblank/alphanumdash tags the request
	// DTOs depend on.
	validate := customvalidator.New()

	// Layered architecture: repository -> coordinator -> service -> handler
	saleRepo := repository.NewSaleRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	coord := coordinator.NewRedisCoordinator(redisClient, cfg.Redis.MarkTTL())
	saleService := service.NewSaleService(pool, saleRepo, orderRepo, coord, cfg.Sale.DefaultSaleID)

	saleHandler := handler.NewSaleHandler(saleService, validate)
	purchaseHandler := handler.NewPurchaseHandler(saleService, validate)
	adminHandler := handler.NewAdminHandler(saleService)
	healthHandler := handler.NewHealthHandler(pool, rediscli.Pinger{Client: redisClient})

	// Seed the fast coordinator for the default sale before serving traffic.
	if cfg.Sale.DefaultSaleID != "" {
		saleService.Bootstrap(ctx, cfg.Sale.DefaultSaleID)
	}

	app.Get("/health", healthHandler.Check)

	// Sale routes
	app.Post("/api/sales", saleHandler.CreateSale)
	app.Get("/api/sales/:sale_id", saleHandler.GetSaleStatus)
	app.Get("/api/sales/:sale_id/stats", saleHandler.GetStats)
	app.Patch("/api/sales/:sale_id/window", saleHandler.UpdateWindow)

	// Purchase routes - the admission pipeline's entry points
	app.Post("/api/purchases", purchaseHandler.Purchase)
	app.Get("/api/purchases/:sale_id/:user_id", purchaseHandler.GetUserPurchase)

	// Administrative routes
	app.Post("/api/admin/sales/:sale_id/reset", adminHandler.Reset)
	app.Post("/api/admin/sales/:sale_id/init-stock", adminHandler.InitStock)
	app.Post("/api/admin/sales/:sale_id/recover-marks", adminHandler.RecoverUserMarks)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close durable pool and coordinator connection AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing durable order log connections...")
	pool.Close()
	log.Info().Msg("closing fast coordinator connection...")
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("error closing fast coordinator connection")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
