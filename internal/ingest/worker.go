package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chatline/chatline/internal/protocol"
	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/pkg/logging"
)

type workerConfig struct {
	workers          int
	receiveBatchSize int
	receiveWaitSecs  int
}

// WorkerOption customizes the ingest worker.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(c *workerConfig) {
		if count > 0 {
			c.workers = count
		}
	}
}

// Worker drains the event queue and pushes each envelope through the
// pipeline. Failed events are left on the queue for redelivery; the
// pipeline's idempotent update branch absorbs the replay.
type Worker struct {
	pipeline *Pipeline
	queue    queue.Client
	logger   *logging.Logger
	cfg      workerConfig
	wg       sync.WaitGroup
}

// NewWorker creates an ingest worker.
func NewWorker(pipeline *Pipeline, q queue.Client, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if pipeline == nil {
		panic("ingest: pipeline cannot be nil")
	}
	if q == nil {
		panic("ingest: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          4,
		receiveBatchSize: 10,
		receiveWaitSecs:  20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		pipeline: pipeline,
		queue:    q,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("ingest worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("ingest worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound events", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	var ev protocol.Event
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		w.logger.Error("failed to decode inbound event", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	ev.Raw = []byte(msg.Body)

	if err := w.pipeline.Process(ctx, ev); err != nil {
		if errors.Is(err, ErrMediaUnavailable) {
			// An undownloadable attachment stays undownloadable: drop the
			// event instead of re-fetching it on every redelivery.
			w.logger.Error("event dropped, media unavailable",
				"error", err,
				"tenant_id", ev.TenantID,
				"message_id", ev.Info.ID,
			)
			w.deleteMessage(context.Background(), msg.ReceiptHandle)
			return
		}
		// Leave transient failures for redelivery; the update branch makes
		// the replay harmless.
		w.logger.Error("event processing failed",
			"error", err,
			"tenant_id", ev.TenantID,
			"message_id", ev.Info.ID,
		)
		return
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Warn(fmt.Sprintf("failed to delete inbound event message: %v", err))
	}
}
