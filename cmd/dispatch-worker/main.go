package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/chatline/cmd/mainconfig"
	"github.com/chatline/chatline/internal/campaign"
	appconfig "github.com/chatline/chatline/internal/config"
	"github.com/chatline/chatline/internal/line"
	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dispatch worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		dispatchQueue queue.Client
		jobStore      *campaign.JobStore
	)
	if cfg.UseMemoryQueue {
		dispatchQueue = queue.NewMemoryQueue(256)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		dispatchQueue = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.DispatchQueueURL)
		jobStore = campaign.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.DispatchJobsTable, logger)
	}

	campaigns := store.NewCampaignStore(pool)
	dispatcher := line.NewClient(cfg.SessionBaseURL, cfg.SessionAPIToken, line.WithLogger(logger))

	worker := campaign.NewWorker(
		campaigns,
		dispatcher,
		dispatchQueue,
		jobStore,
		logger,
		campaign.WithWorkerCount(cfg.WorkerCount),
		campaign.WithMaxAttempts(cfg.DispatchMaxAttempts),
		campaign.WithBackoffBase(cfg.DispatchBackoffBase),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down dispatch worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("dispatch worker stopped")
	case <-doneCtx.Done():
		logger.Error("dispatch worker shutdown timed out", "error", doneCtx.Err())
	}
}
