package dialog

import "context"

// queueMessage is one unit of work moving through a turn queue.
type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// queueClient abstracts the turn queue so the dispatcher runs the same
// against in-memory and SQS backends.
type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}
