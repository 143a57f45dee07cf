// Package queue abstracts the durable work queue between the webhook edge
// and the workers. Production runs on SQS; tests and single-process dev use
// the in-memory implementation.
package queue

import "context"

// Client is the small queue surface the workers consume.
type Client interface {
	Send(ctx context.Context, body string, opts ...SendOption) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type sendOptions struct {
	delaySeconds int32
}

// SendOption configures a single Send.
type SendOption func(*sendOptions)

// WithDelaySeconds defers delivery of the message. SQS caps the delay at
// 900 seconds.
func WithDelaySeconds(seconds int32) SendOption {
	return func(o *sendOptions) {
		o.delaySeconds = seconds
	}
}

func applySendOptions(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
