package queue

import (
	"context"
	"errors"

	"github.com/iago/pptx-generator-back/internal/domain"
)

// ErrQueueFull is returned when the backend refuses new work.
var ErrQueueFull = errors.New("queue is full")

// Handler runs one message. A returned error moves the message to the DLQ.
type Handler func(context.Context, domain.QueueMessage) error

// Producer sends job ids to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives job ids and executes handlers until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
