package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/config"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/database"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/events"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/logger"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/middleware"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/repository"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/routes"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   "studio-booking",
		Environment:   cfg.AppEnv,
		CollectorAddr: cfg.OTelCollectorAddr,
		SampleRatio:   cfg.OTelSampleRatio,
	})
	if err != nil {
		zlog.Fatal("init tracing", zap.Error(err))
	}

	// 2. Storage
	var store repository.Transactor
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		memory := repository.NewMemoryStore()
		seedDemoSchedule(memory, time.Now().UTC())
		store = memory
		zlog.Warn("using in-memory store; data is lost on restart")
	default:
		pool, err := database.Connect(ctx, cfg.DBUrl, zlog)
		if err != nil {
			zlog.Fatal("connect to database", zap.Error(err))
		}
		defer pool.Close()
		store = repository.NewPgTransactor(pool)
	}

	deps := routes.Dependencies{Store: store, Log: zlog}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("parse REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The replay cache fails open, so a cold Redis only costs dedup.
			zlog.Warn("redis not reachable at startup", zap.Error(err))
		}
		deps.Redis = rdb
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, zlog.Named("amqp"))
		if err != nil {
			zlog.Warn("rabbitmq publisher disabled", zap.Error(err))
		} else {
			defer func() { _ = publisher.Close() }()
			deps.Publisher = publisher
		}
	}

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.IsProduction()})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger(zlog.Named("http")))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(ctx, app, cfg, deps); err != nil {
		zlog.Fatal("register routes", zap.Error(err))
	}

	// 4. Start Server
	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		zlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zlog.Error("tracing shutdown", zap.Error(err))
	}
}

// seedDemoSchedule gives the in-memory store a week of classes so the API is
// usable without a database.
func seedDemoSchedule(store *repository.MemoryStore, now time.Time) {
	day := now.Truncate(24 * time.Hour)
	titles := []string{"Hot Vinyasa", "Hot Yin", "Hot Pilates"}
	for d := 1; d <= 7; d++ {
		for i, title := range titles {
			startsAt := day.AddDate(0, 0, d).Add(time.Duration(7+5*i) * time.Hour)
			store.AddClass(models.ClassInstance{
				Title:    title,
				StartsAt: startsAt,
				EndsAt:   startsAt.Add(time.Hour),
				Capacity: 20,
			})
		}
	}
}
