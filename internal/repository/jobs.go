package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iago/pptx-generator-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrIllegalTransition marks a status change the state machine forbids.
	ErrIllegalTransition = errors.New("illegal job status transition")
	// ErrTerminal is returned when completing or failing an already finished job.
	ErrTerminal = errors.New("job already terminal")
)

// Clock returns the current time. Stores take one so sweeps can be tested
// without real timers.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// JobStore persists job records and enforces the status state machine.
type JobStore interface {
	Create(ctx context.Context, input domain.JobInput) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	TransitionStatus(ctx context.Context, jobID string, status domain.JobStatus) error
	AdvanceProgress(ctx context.Context, jobID string, phase domain.PhaseName) error
	Complete(ctx context.Context, jobID string, result domain.JobResult) error
	Fail(ctx context.Context, jobID string, message string) error
	Delete(ctx context.Context, jobID string) error
	Sweep(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// checkTransition validates from -> to against Queued -> Processing -> {Completed|Failed}.
func checkTransition(from, to domain.JobStatus) error {
	if from.Terminal() && to.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	switch {
	case from == domain.JobStatusQueued && to == domain.JobStatusProcessing:
		return nil
	case from == domain.JobStatusProcessing && to.Terminal():
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

type MemoryOption func(*MemoryJobStore)

func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryJobStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MemoryJobStore keeps jobs in a process-local map.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  Clock
}

func NewMemoryJobStore(opts ...MemoryOption) *MemoryJobStore {
	store := &MemoryJobStore{
		jobs: make(map[string]*domain.Job),
		now:  systemClock,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *MemoryJobStore) Create(_ context.Context, input domain.JobInput) (*domain.Job, error) {
	now := s.now()
	job := &domain.Job{
		ID:     uuid.NewString(),
		Status: domain.JobStatusQueued,
		Progress: domain.Progress{
			TotalPhases: domain.TotalPhases(),
		},
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.Input.Options = append([]byte(nil), input.Options...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return nil, fmt.Errorf("create job: duplicate id %s", job.ID)
	}
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) TransitionStatus(_ context.Context, jobID string, status domain.JobStatus) error {
	return s.mutate(jobID, func(job *domain.Job) error {
		if status.Terminal() {
			return fmt.Errorf("%w: use complete or fail to enter %s", ErrIllegalTransition, status)
		}
		if err := checkTransition(job.Status, status); err != nil {
			return err
		}
		job.Status = status
		return nil
	})
}

func (s *MemoryJobStore) AdvanceProgress(_ context.Context, jobID string, phase domain.PhaseName) error {
	ordinal, ok := domain.PhaseOrdinal(phase)
	if !ok {
		return nil
	}
	return s.mutate(jobID, func(job *domain.Job) error {
		job.Progress = domain.Progress{
			CurrentPhase: phase,
			PhaseIndex:   ordinal,
			TotalPhases:  domain.TotalPhases(),
		}
		return nil
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, jobID string, result domain.JobResult) error {
	return s.mutate(jobID, func(job *domain.Job) error {
		if err := checkTransition(job.Status, domain.JobStatusCompleted); err != nil {
			return err
		}
		job.Status = domain.JobStatusCompleted
		job.Result = &result
		job.Error = ""
		return nil
	})
}

func (s *MemoryJobStore) Fail(_ context.Context, jobID string, message string) error {
	return s.mutate(jobID, func(job *domain.Job) error {
		if err := checkTransition(job.Status, domain.JobStatusFailed); err != nil {
			return err
		}
		job.Status = domain.JobStatusFailed
		job.Result = nil
		job.Error = message
		return nil
	})
}

func (s *MemoryJobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

// Sweep removes jobs older than maxAge unless they are still processing.
func (s *MemoryJobStore) Sweep(_ context.Context, maxAge time.Duration) ([]string, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]string, 0)
	for id, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing {
			continue
		}
		if now.Sub(job.CreatedAt) > maxAge {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// mutate applies fn to the stored record under the write lock. The record is
// only replaced when fn succeeds, so readers never see a half-applied change.
func (s *MemoryJobStore) mutate(jobID string, fn func(job *domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	next := cloneJob(current)
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = s.now()
	s.jobs[jobID] = next
	return nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Input.Options = append([]byte(nil), job.Input.Options...)
	if job.Result != nil {
		result := *job.Result
		clone.Result = &result
	}
	return &clone
}
