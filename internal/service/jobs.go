package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/queue"
	"github.com/iago/pptx-generator-back/internal/repository"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotReady     = errors.New("presentation is not ready")
)

// Artifact is a completed deck ready to stream.
type Artifact struct {
	Path     string
	Filename string
	Size     int64
	ModTime  time.Time
}

type JobsService struct {
	store    repository.JobStore
	producer queue.Producer
	logger   zerolog.Logger
}

func NewJobsService(store repository.JobStore, producer queue.Producer, logger zerolog.Logger) *JobsService {
	return &JobsService{
		store:    store,
		producer: producer,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
}

// Submit validates the input, records a queued job and hands its id to the
// queue. A job the queue refuses is deleted so it is never left Queued.
func (s *JobsService) Submit(ctx context.Context, input domain.JobInput) (*domain.Job, error) {
	input.Source = strings.TrimSpace(input.Source)
	input.Brand = strings.ToLower(strings.TrimSpace(input.Brand))
	if input.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidInput)
	}
	if !input.SourceKind.Valid() {
		return nil, fmt.Errorf("%w: unsupported source kind %q", ErrInvalidInput, input.SourceKind)
	}
	if input.Brand == "" {
		input.Brand = deck.DefaultBrand
	}
	if _, ok := deck.PaletteFor(input.Brand); !ok {
		return nil, fmt.Errorf("%w: unknown brand %q", ErrInvalidInput, input.Brand)
	}

	job, err := s.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		Attempt:     0,
		RequestedAt: job.CreatedAt,
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		if deleteErr := s.store.Delete(context.WithoutCancel(ctx), job.ID); deleteErr != nil {
			s.logger.Error().Err(deleteErr).Str("job_id", job.ID).Msg("delete unqueued job")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info().Str("job_id", job.ID).Str("source_kind", string(input.SourceKind)).Msg("job queued")
	return job, nil
}

func (s *JobsService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Download returns the artifact of a completed job. Jobs in any other
// status report ErrNotReady.
func (s *JobsService) Download(ctx context.Context, jobID string) (Artifact, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Artifact{}, err
	}
	if job.Status != domain.JobStatusCompleted || job.Result == nil {
		return Artifact{}, fmt.Errorf("%w: job is %s", ErrNotReady, job.Status)
	}

	info, err := os.Stat(job.Result.ArtifactPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, fmt.Errorf("artifact for job %s: %w", jobID, repository.ErrNotFound)
		}
		return Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}

	return Artifact{
		Path:     job.Result.ArtifactPath,
		Filename: filepath.Base(job.Result.ArtifactPath),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}
