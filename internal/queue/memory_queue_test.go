package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueSendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	if err := q.Send(ctx, `{"a":1}`); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Send(ctx, `{"a":2}`); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Body != `{"a":1}` {
		t.Fatalf("first body = %q", msgs[0].Body)
	}
	if msgs[0].ReceiptHandle == "" {
		t.Fatal("expected receipt handle")
	}
	if err := q.Delete(ctx, msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatal("Receive returned before the wait elapsed")
	}
}

func TestMemoryQueueSendHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	if err := q.Send(ctx, "fill"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Send(cancelled, "blocked"); err == nil {
		t.Fatal("expected context error on full queue")
	}
}

func TestMemoryQueueDelayedSend(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	if err := q.Send(ctx, "later", WithDelaySeconds(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	immediate, immediateCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer immediateCancel()
	if _, err := q.Receive(immediate, 1, 0); err == nil {
		t.Fatal("delayed message arrived immediately")
	}

	msgs, err := q.Receive(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "later" {
		t.Fatalf("msgs = %+v, want the delayed message", msgs)
	}
}

func TestMemoryQueueDelayedSendSurvivesFullBuffer(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Send(ctx, "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Send(ctx, "second", WithDelaySeconds(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Let the timer fire while the buffer is still full.
	time.Sleep(1200 * time.Millisecond)

	msgs, err := q.Receive(ctx, 1, 1)
	if err != nil || len(msgs) != 1 || msgs[0].Body != "first" {
		t.Fatalf("first Receive = %+v err=%v", msgs, err)
	}
	msgs, err = q.Receive(ctx, 1, 3)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "second" {
		t.Fatalf("delayed message lost: %+v", msgs)
	}
}
