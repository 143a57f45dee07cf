package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/chatline/chatline/cmd/mainconfig"
	"github.com/chatline/chatline/internal/api/router"
	"github.com/chatline/chatline/internal/audit"
	appconfig "github.com/chatline/chatline/internal/config"
	"github.com/chatline/chatline/internal/http/handlers"
	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chatline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	var eventQueue queue.Client
	if cfg.UseMemoryQueue {
		eventQueue = queue.NewMemoryQueue(1024)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		eventQueue = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EventQueueURL)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	// The realtime websocket is served by the ingest worker, where the
	// fan-out events are produced; this binary exposes no /ws route.
	routerCfg := &router.Config{
		Logger:           logger,
		EventsWebhook:    handlers.NewEventsWebhookHandler(eventQueue, cfg.WebhookToken, logger),
		MediaFiles:       handlers.NewMediaFilesHandler(cfg.PublicMediaRoot, logger),
		Health:           handlers.NewHealthHandler(pool, redisClient),
		Dashboard:        handlers.NewAdminDashboardHandler(db, logger),
		Audit:            handlers.NewAdminAuditHandler(audit.NewService(db), logger),
		AdminAuthSecret:  cfg.AdminJWTSecret,
		MetricsHandler:   promhttp.Handler(),
		WebhookRateLimit: 50,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
