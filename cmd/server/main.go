package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/server/api"
	"courier/internal/server/auth"
	"courier/internal/server/config"
	"courier/internal/server/database"
	"courier/internal/server/mail"
	"courier/internal/server/service"
	"courier/internal/server/storage"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_endpoint", cfg.StorageEndpoint,
		"bucket", cfg.StorageBucket,
		"cleanup_interval", cfg.CleanupInterval,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize object storage
	var store storage.ObjectStore
	if cfg.MockStorage {
		store = storage.NewMockStore()
		slog.Warn("using in-memory mock storage, objects will not survive a restart")
	} else {
		s, err := storage.NewMinioStore(ctx, cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket, cfg.StorageUseSSL)
		if err != nil {
			slog.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		store = s
		slog.Info("object storage initialized", "endpoint", cfg.StorageEndpoint, "bucket", cfg.StorageBucket)
	}

	// Outbound mail
	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		slog.Info("smtp mailer configured", "host", cfg.SMTPHost)
	} else {
		mailer = mail.NewLogMailer()
		slog.Warn("no SMTP relay configured, mail will only be logged")
	}

	// Rate limiter: Redis when configured, otherwise per-instance memory
	limiterCfg := api.LimiterConfig{MaxRequests: cfg.RateLimitMax, Window: cfg.RateLimitWindow}
	var limiter api.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		limiter = api.NewRedisLimiter(client, limiterCfg)
		slog.Info("redis rate limiter configured", "addr", cfg.RedisAddr)
	} else {
		limiter = api.NewMemoryLimiter(limiterCfg)
	}

	// Initialize services
	repo := database.NewRepository(db)
	tokens := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	svc := service.NewTransferService(repo, store, mailer, cfg)
	accounts := service.NewAccountService(repo, tokens)

	// Start background cleanup
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanup := service.NewCleanupRunner(svc, cfg.CleanupInterval)
	cleanup.Start(cleanupCtx)

	// Setup HTTP router
	handler := api.NewHandler(svc, accounts, store, db, cfg.CronSecret)
	e := api.SetupRouter(handler, tokens, limiter)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop background cleanup
	cleanupCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}
