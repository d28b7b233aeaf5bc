package queue

import (
	"context"
	"sync"

	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/rs/zerolog"
)

// LocalQueue is the in-process queue used when Redis is not configured.
// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
type LocalQueue struct {
	ch     chan domain.QueueMessage
	logger zerolog.Logger

	dlqMu sync.Mutex
	dlq   []domain.QueueMessage
}

func NewLocalQueue(capacity int, logger zerolog.Logger) *LocalQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &LocalQueue{
		ch:     make(chan domain.QueueMessage, capacity),
		logger: logger.With().Str("component", "local_queue").Logger(),
		dlq:    make([]domain.QueueMessage, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume may be called from several goroutines; each message is
// delivered to exactly one of them.
func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if err := handler(ctx, message); err != nil {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, message)
				q.dlqMu.Unlock()
				q.logger.Warn().Err(err).Str("job_id", message.JobID).Msg("message moved to dlq")
			}
		}
	}
}

func (q *LocalQueue) Len() int {
	return len(q.ch)
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}
