package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/pkg/logging"
)

// Dispatcher sends the follow-up campaign message for a confirmed
// shipping row.
type Dispatcher interface {
	Dispatch(ctx context.Context, shipping *store.ShippingRecord) error
}

type shippingReader interface {
	GetByID(ctx context.Context, tenantID, id int64) (*store.ShippingRecord, error)
}

type jobTracker interface {
	PutPending(ctx context.Context, job *JobRecord) error
	MarkCompleted(ctx context.Context, jobID string, attempts int) error
	MarkFailed(ctx context.Context, jobID string, attempts int, errMsg string) error
}

type workerConfig struct {
	workers          int
	receiveBatchSize int
	receiveWaitSecs  int
	maxAttempts      int
	backoffBase      time.Duration
}

// WorkerOption customizes the dispatch worker.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(c *workerConfig) {
		if count > 0 {
			c.workers = count
		}
	}
}

// WithMaxAttempts bounds the retry policy.
func WithMaxAttempts(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the base delay for the exponential retry backoff.
func WithBackoffBase(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// Worker consumes re-dispatch jobs from the dispatch queue and sends the
// campaign follow-up. Failures are retried by re-enqueueing the job with
// exponential backoff until the attempt budget runs out.
type Worker struct {
	shippings  shippingReader
	dispatcher Dispatcher
	queue      queue.Client
	jobs       jobTracker
	logger     *logging.Logger
	cfg        workerConfig
	wg         sync.WaitGroup
}

// NewWorker creates a dispatch worker.
func NewWorker(shippings shippingReader, dispatcher Dispatcher, q queue.Client, jobs jobTracker, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if shippings == nil {
		panic("campaign: shipping reader cannot be nil")
	}
	if dispatcher == nil {
		panic("campaign: dispatcher cannot be nil")
	}
	if q == nil {
		panic("campaign: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          2,
		receiveBatchSize: 5,
		receiveWaitSecs:  20,
		maxAttempts:      3,
		backoffBase:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		shippings:  shippings,
		dispatcher: dispatcher,
		queue:      q,
		jobs:       jobs,
		cfg:        cfg,
		logger:     logger,
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
	w.logger.Debug("dispatch worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("dispatch worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive dispatch jobs", "error", err, "worker_id", workerID)
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
	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode dispatch job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	w.trackPending(ctx, job)

	shipping, err := w.shippings.GetByID(ctx, job.TenantID, job.CampaignShippingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("dispatch job references missing shipping", "job_id", job.ID, "shipping_id", job.CampaignShippingID)
			w.markFailed(ctx, job, "shipping row not found")
			w.deleteMessage(context.Background(), msg.ReceiptHandle)
			return
		}
		w.retry(ctx, job, err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if err := w.dispatcher.Dispatch(ctx, shipping); err != nil {
		w.retry(ctx, job, err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if w.jobs != nil {
		if err := w.jobs.MarkCompleted(ctx, job.ID, job.Attempt); err != nil {
			w.logger.Warn("failed to mark dispatch job completed", "error", err, "job_id", job.ID)
		}
	}
	w.logger.Info("campaign follow-up dispatched",
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"shipping_id", job.CampaignShippingID,
		"attempt", job.Attempt,
	)
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

// retry re-enqueues the job with exponential backoff, or marks it failed
// once the attempt budget is spent.
func (w *Worker) retry(ctx context.Context, job Job, cause error) {
	if job.Attempt >= w.cfg.maxAttempts {
		w.logger.Error("dispatch job exhausted retries",
			"error", cause,
			"job_id", job.ID,
			"shipping_id", job.CampaignShippingID,
			"attempts", job.Attempt,
		)
		w.markFailed(ctx, job, cause.Error())
		return
	}

	delay := w.cfg.backoffBase * (1 << (job.Attempt - 1))
	job.Attempt++

	_, body, err := encodeJob(job)
	if err != nil {
		w.logger.Error("failed to encode retry job", "error", err, "job_id", job.ID)
		w.markFailed(ctx, job, err.Error())
		return
	}

	seconds := int32(delay / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if err := w.queue.Send(ctx, body, queue.WithDelaySeconds(seconds)); err != nil {
		w.logger.Error("failed to re-enqueue dispatch job", "error", err, "job_id", job.ID)
		w.markFailed(ctx, job, err.Error())
		return
	}

	w.logger.Warn("dispatch job retrying",
		"error", cause,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"delay", delay.String(),
	)
}

func (w *Worker) trackPending(ctx context.Context, job Job) {
	if w.jobs == nil || job.Attempt > 1 {
		return
	}
	rec := &JobRecord{
		JobID:              job.ID,
		TenantID:           job.TenantID,
		CampaignShippingID: job.CampaignShippingID,
		CampaignID:         job.CampaignID,
		Attempts:           job.Attempt,
	}
	if err := w.jobs.PutPending(ctx, rec); err != nil {
		w.logger.Warn("failed to track dispatch job", "error", err, "job_id", job.ID)
	}
}

func (w *Worker) markFailed(ctx context.Context, job Job, msg string) {
	if w.jobs == nil {
		return
	}
	if err := w.jobs.MarkFailed(ctx, job.ID, job.Attempt, msg); err != nil {
		w.logger.Warn("failed to mark dispatch job failed", "error", err, "job_id", job.ID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Warn(fmt.Sprintf("failed to delete dispatch message: %v", err))
	}
}
