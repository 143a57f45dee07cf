package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatline/chatline/internal/queue"
)

// recordingQueue hands out a fixed backlog once and records deletions, so
// tests can tell a dropped message from one left for redelivery.
type recordingQueue struct {
	mu      sync.Mutex
	backlog []queue.Message
	deleted []string
}

func (q *recordingQueue) Send(_ context.Context, body string, _ ...queue.SendOption) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.backlog = append(q.backlog, queue.Message{ID: body, Body: body, ReceiptHandle: body})
	return nil
}

func (q *recordingQueue) Receive(ctx context.Context, _ int, _ int) ([]queue.Message, error) {
	q.mu.Lock()
	msgs := q.backlog
	q.backlog = nil
	q.mu.Unlock()
	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return msgs, nil
}

func (q *recordingQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *recordingQueue) deleteCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted)
}

func TestWorkerProcessesQueuedEvents(t *testing.T) {
	f := newFixture(t, nil)
	q := queue.NewMemoryQueue(10)

	ev := newTextEvent("MSG1", "hello", false)
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := q.Send(context.Background(), string(body)); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(f.pipeline, q, nil, WithWorkerCount(1))
	w.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		f.messages.mu.Lock()
		n := len(f.messages.records)
		f.messages.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for event to be processed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	w.Wait()

	rec := f.messages.records["MSG1"]
	if rec == nil || rec.Body == nil || *rec.Body != "hello" {
		t.Fatalf("message not persisted: %+v", rec)
	}
}

func TestWorkerDropsMalformedPayloads(t *testing.T) {
	f := newFixture(t, nil)
	q := queue.NewMemoryQueue(10)

	if err := q.Send(context.Background(), "{not json"); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(f.pipeline, q, nil, WithWorkerCount(1))
	w.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()
	w.Wait()

	if len(f.messages.records) != 0 {
		t.Fatalf("records = %d, want 0", len(f.messages.records))
	}
}

func TestWorkerDropsEventsWithUnavailableMedia(t *testing.T) {
	f := newFixture(t, memDownloader{err: errors.New("sidecar down")})

	ev := newImageEvent("MSG1", "")
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	q := &recordingQueue{backlog: []queue.Message{{ID: "1", Body: string(body), ReceiptHandle: "rh-1"}}}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(f.pipeline, q, nil, WithWorkerCount(1))
	w.Start(ctx)

	deadline := time.After(3 * time.Second)
	for q.deleteCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("media-failed event left for redelivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	w.Wait()

	if len(f.messages.records) != 0 {
		t.Fatalf("records = %d, want 0", len(f.messages.records))
	}
	if q.deleted[0] != "rh-1" {
		t.Fatalf("deleted handle = %q", q.deleted[0])
	}
}
