package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueueRejectsWhenFull(t *testing.T) {
	q := NewLocalQueue(2, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "b"}))

	err := q.Enqueue(ctx, domain.QueueMessage{JobID: "c"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())
}

func TestLocalQueueEnqueueHonorsCanceledContext(t *testing.T) {
	q := NewLocalQueue(2, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Enqueue(ctx, domain.QueueMessage{JobID: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, q.Len())
}

func TestLocalQueueDeliversInOrderAndMovesFailuresToDLQ(t *testing.T) {
	q := NewLocalQueue(8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: id}))
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			mu.Lock()
			seen = append(seen, message.JobID)
			mu.Unlock()
			if message.JobID == "b" {
				return errors.New("boom")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	mu.Unlock()
	assert.Equal(t, 1, q.DLQSize())
}

func TestParseStreamMessage(t *testing.T) {
	requestedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"job_id":       "job-1",
			"attempt":      "0",
			"requested_at": requestedAt.Format(time.RFC3339Nano),
		},
	}

	message, err := parseStreamMessage(item)
	require.NoError(t, err)
	assert.Equal(t, "job-1", message.JobID)
	assert.Equal(t, 0, message.Attempt)
	assert.True(t, requestedAt.Equal(message.RequestedAt))
}

func TestParseStreamMessageRejectsMissingFields(t *testing.T) {
	_, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"attempt": "0"}})
	assert.Error(t, err)

	_, err = parseStreamMessage(redis.XMessage{ID: "2-0", Values: map[string]any{
		"job_id":       "job-2",
		"attempt":      "x",
		"requested_at": time.Now().UTC().Format(time.RFC3339Nano),
	}})
	assert.Error(t, err)
}
