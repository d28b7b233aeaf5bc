package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/queue"
	"github.com/rs/zerolog"
)

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

type Config struct {
	Workers int
	// RetryDelay is the pause before a consumer loop restarts after a
	// backend error.
	RetryDelay time.Duration
}

// Metrics tracks the pool's activity.
type Metrics struct {
	ActiveJobs    atomic.Int64
	CompletedRuns atomic.Int64
	FailedRuns    atomic.Int64
}

// Pool runs a fixed number of consumers. Stop halts consumption first and
// then waits for the jobs already running.
type Pool struct {
	consumer   queue.Consumer
	runner     Runner
	workers    int
	retryDelay time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	jobCtx  context.Context
	wg      sync.WaitGroup
	started bool

	metrics Metrics
}

func NewPool(consumer queue.Consumer, runner Runner, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Pool{
		consumer:   consumer,
		runner:     runner,
		workers:    cfg.Workers,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the consumers. Calling it twice has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	consumeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	// Jobs outlive the consume loop so Stop can drain them.
	p.jobCtx = context.WithoutCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(consumeCtx, i)
	}
	p.logger.Info().Int("workers", p.workers).Msg("worker pool started")
}

// Stop stops consuming and waits for in-flight jobs until ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Int64("active_jobs", p.metrics.ActiveJobs.Load()).Msg("worker pool stop timed out")
		return ctx.Err()
	}
}

func (p *Pool) Metrics() *Metrics {
	return &p.metrics
}

func (p *Pool) loop(ctx context.Context, index int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", index).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.handle)
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("consume loop error")

		timer := time.NewTimer(p.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Pool) handle(_ context.Context, message domain.QueueMessage) error {
	p.metrics.ActiveJobs.Add(1)
	defer p.metrics.ActiveJobs.Add(-1)

	err := p.runner.Run(p.jobCtx, message.JobID)
	if err != nil {
		p.metrics.FailedRuns.Add(1)
		if !errors.Is(err, context.Canceled) {
			p.logger.Error().Err(err).Str("job_id", message.JobID).Msg("job run failed")
		}
		return err
	}
	p.metrics.CompletedRuns.Add(1)
	return nil
}
