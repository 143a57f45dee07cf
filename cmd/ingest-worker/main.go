package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/chatline/chatline/cmd/mainconfig"
	"github.com/chatline/chatline/internal/audit"
	"github.com/chatline/chatline/internal/campaign"
	appconfig "github.com/chatline/chatline/internal/config"
	"github.com/chatline/chatline/internal/greeting"
	"github.com/chatline/chatline/internal/http/handlers"
	"github.com/chatline/chatline/internal/ingest"
	"github.com/chatline/chatline/internal/line"
	"github.com/chatline/chatline/internal/media"
	"github.com/chatline/chatline/internal/observability/metrics"
	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/internal/realtime"
	"github.com/chatline/chatline/internal/settings"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/internal/transcribe"
	"github.com/chatline/chatline/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ingest worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	var (
		eventQueue    queue.Client
		dispatchQueue queue.Client
		mediaArchive  media.S3API
	)
	if cfg.UseMemoryQueue {
		eventQueue = queue.NewMemoryQueue(1024)
		dispatchQueue = queue.NewMemoryQueue(256)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sqsClient := sqs.NewFromConfig(awsCfg)
		eventQueue = queue.NewSQSQueue(sqsClient, cfg.EventQueueURL)
		dispatchQueue = queue.NewSQSQueue(sqsClient, cfg.DispatchQueueURL)
		if cfg.MediaArchiveBucket != "" {
			mediaArchive = s3.NewFromConfig(awsCfg)
		}
	}

	settingsStore := settings.NewStore(pool, redisClient, cfg.SettingsCacheTTL)
	contacts := store.NewContactStore(pool)
	tickets := store.NewTicketStore(pool)
	messages := store.NewMessageStore(pool)
	campaigns := store.NewCampaignStore(pool)

	hub := realtime.NewHub(logger)

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	audits := audit.NewService(db)

	sender := line.NewClient(cfg.SessionBaseURL, cfg.SessionAPIToken, line.WithLogger(logger))
	greeter := greeting.NewService(sender, tickets, messages,
		greeting.WithLogger(logger),
		greeting.WithAudit(audits),
	)
	detector := campaign.NewDetector(campaigns, tickets, dispatchQueue, hub, logger,
		campaign.WithAudit(audits),
	)

	downloader := media.NewClient(cfg.SessionBaseURL, cfg.SessionAPIToken, media.WithLogger(logger))
	writer := media.NewWriter(cfg.PublicMediaRoot, mediaArchive, cfg.MediaArchiveBucket, logger)

	opts := []ingest.PipelineOption{
		ingest.WithLogger(logger),
		ingest.WithAudit(audits),
		ingest.WithMetrics(metrics.NewIngestMetrics(nil)),
	}
	if cfg.GeminiAPIKey != "" {
		transcriber, err := transcribe.NewGeminiTranscriber(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			logger.Error("failed to create transcriber", "error", err)
			os.Exit(1)
		}
		defer func() { _ = transcriber.Close() }()
		opts = append(opts, ingest.WithTranscriber(transcriber))
	}

	pipeline := ingest.NewPipeline(
		settingsStore, contacts, tickets, messages,
		detector, greeter, hub, downloader, writer,
		opts...,
	)

	worker := ingest.NewWorker(pipeline, eventQueue, logger,
		ingest.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)

	// Small sidecar HTTP surface: the realtime socket lives with the
	// process that produces the events.
	r := chi.NewRouter()
	r.Get("/ws", hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", handlers.NewIngestStatsHandler(nil, logger).GetStats)
	r.Get("/health", handlers.NewHealthHandler(pool, redisClient).Check)

	// No read/write timeouts: the websocket endpoint holds connections
	// open indefinitely.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("realtime endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down ingest worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("ingest worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("ingest worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
