package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/internal/store"
)

type fakeReader struct {
	recs map[int64]*store.ShippingRecord
}

func (f *fakeReader) GetByID(_ context.Context, _ int64, id int64) (*store.ShippingRecord, error) {
	if rec, ok := f.recs[id]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

type fakeDispatcher struct {
	mu       sync.Mutex
	failures int
	calls    []int64
}

func (f *fakeDispatcher) Dispatch(_ context.Context, shipping *store.ShippingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, shipping.ID)
	if f.failures > 0 {
		f.failures--
		return errors.New("line unavailable")
	}
	return nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestWorkerDispatchesJob(t *testing.T) {
	reader := &fakeReader{recs: map[int64]*store.ShippingRecord{
		5: {ID: 5, TenantID: 1, CampaignID: 2, Number: "551199"},
	}}
	dispatcher := &fakeDispatcher{}
	q := queue.NewMemoryQueue(8)

	_, body, err := encodeJob(Job{TenantID: 1, CampaignShippingID: 5, CampaignID: 2})
	if err != nil {
		t.Fatalf("encodeJob: %v", err)
	}
	if err := q.Send(context.Background(), body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	w := NewWorker(reader, dispatcher, q, nil, nil, WithWorkerCount(1))
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	w.Wait()

	if got := dispatcher.callCount(); got != 1 {
		t.Fatalf("dispatch calls = %d, want 1", got)
	}
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	reader := &fakeReader{recs: map[int64]*store.ShippingRecord{
		5: {ID: 5, TenantID: 1, CampaignID: 2},
	}}
	dispatcher := &fakeDispatcher{failures: 1}
	q := queue.NewMemoryQueue(8)

	_, body, err := encodeJob(Job{TenantID: 1, CampaignShippingID: 5, CampaignID: 2})
	if err != nil {
		t.Fatalf("encodeJob: %v", err)
	}
	if err := q.Send(context.Background(), body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	w := NewWorker(reader, dispatcher, q, nil, nil,
		WithWorkerCount(1),
		WithMaxAttempts(3),
		WithBackoffBase(time.Second),
	)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for dispatcher.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	w.Wait()

	if got := dispatcher.callCount(); got != 2 {
		t.Fatalf("dispatch calls = %d, want 2 (fail then succeed)", got)
	}
}

func TestWorkerStopsAfterMaxAttempts(t *testing.T) {
	job := Job{ID: "job-1", TenantID: 1, CampaignShippingID: 5, CampaignID: 2, Attempt: 3}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	reader := &fakeReader{recs: map[int64]*store.ShippingRecord{
		5: {ID: 5, TenantID: 1, CampaignID: 2},
	}}
	dispatcher := &fakeDispatcher{failures: 10}
	q := queue.NewMemoryQueue(8)
	if err := q.Send(context.Background(), string(data)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	w := NewWorker(reader, dispatcher, q, nil, nil, WithWorkerCount(1), WithMaxAttempts(3))
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Give the worker a beat to (incorrectly) re-enqueue.
	time.Sleep(100 * time.Millisecond)
	cancel()
	w.Wait()

	if got := dispatcher.callCount(); got != 1 {
		t.Fatalf("dispatch calls = %d, want 1 (attempt budget exhausted)", got)
	}
}
