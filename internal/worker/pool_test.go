package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	release chan struct{}
	fail    map[string]bool
}

func (r *recordingRunner) Run(ctx context.Context, jobID string) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()
	if r.fail[jobID] {
		return errors.New("job not found")
	}
	return ctx.Err()
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestPoolRunsEveryQueuedJob(t *testing.T) {
	q := queue.NewLocalQueue(16, zerolog.Nop())
	runner := &recordingRunner{fail: map[string]bool{"bad": true}}
	pool := NewPool(q, runner, Config{Workers: 3}, zerolog.Nop())

	ctx := context.Background()
	for _, id := range []string{"a", "b", "bad", "c"} {
		require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: id}))
	}

	pool.Start(ctx)
	pool.Start(ctx)

	require.Eventually(t, func() bool { return runner.count() == 4 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))

	assert.Equal(t, int64(3), pool.Metrics().CompletedRuns.Load())
	assert.Equal(t, int64(1), pool.Metrics().FailedRuns.Load())
	assert.Equal(t, 1, q.DLQSize())
}

func TestPoolStopWaitsForInFlightJobs(t *testing.T) {
	q := queue.NewLocalQueue(4, zerolog.Nop())
	runner := &recordingRunner{release: make(chan struct{})}
	pool := NewPool(q, runner, Config{Workers: 1}, zerolog.Nop())

	ctx := context.Background()
	pool.Start(ctx)
	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "slow"}))

	require.Eventually(t, func() bool { return pool.Metrics().ActiveJobs.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		stopped <- pool.Stop(stopCtx)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned before the running job finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	require.NoError(t, <-stopped)
	assert.Equal(t, 1, runner.count())
	assert.Equal(t, int64(1), pool.Metrics().CompletedRuns.Load())
}

func TestPoolStopTimesOut(t *testing.T) {
	q := queue.NewLocalQueue(4, zerolog.Nop())
	runner := &recordingRunner{release: make(chan struct{})}
	defer close(runner.release)
	pool := NewPool(q, runner, Config{Workers: 1}, zerolog.Nop())

	ctx := context.Background()
	pool.Start(ctx)
	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "stuck"}))
	require.Eventually(t, func() bool { return pool.Metrics().ActiveJobs.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(stopCtx), context.DeadlineExceeded)
}
