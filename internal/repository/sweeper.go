package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobFiles removes the on-disk directory owned by a job.
type JobFiles interface {
	RemoveJob(jobID string) error
}

// Sweeper periodically evicts expired jobs and their directories.
type Sweeper struct {
	store    JobStore
	files    JobFiles
	maxAge   time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSweeper(store JobStore, files JobFiles, maxAge, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{
		store:    store,
		files:    files,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start runs SweepOnce on every interval tick until Stop or ctx is done.
// Calling Start twice without Stop is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.stop)
	s.logger.Info().Dur("interval", s.interval).Dur("max_age", s.maxAge).Msg("sweeper started")
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
	s.logger.Info().Msg("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce evicts expired jobs now and returns the removed ids.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	removed, err := s.store.Sweep(ctx, s.maxAge)
	if err != nil {
		return nil, err
	}
	if s.files != nil {
		for _, id := range removed {
			if err := s.files.RemoveJob(id); err != nil {
				s.logger.Warn().Err(err).Str("job_id", id).Msg("remove job directory")
			}
		}
	}
	if len(removed) > 0 {
		s.logger.Info().Int("removed", len(removed)).Msg("cleaned up old jobs")
	}
	return removed, nil
}
