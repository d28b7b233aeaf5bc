package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/repository"
	"github.com/rs/zerolog"
)

var errInternal = errors.New("internal error")

const (
	artifactName = "presentation.pptx"
	defaultTitle = "Presentation"
)

type ContentRetriever interface {
	Retrieve(ctx context.Context, locator string, kind domain.SourceKind) (string, error)
}

// Generator runs the three model stages.
type Generator interface {
	Analyze(ctx context.Context, content string) (json.RawMessage, error)
	EngineerNarrative(ctx context.Context, analysis json.RawMessage) (domain.Narrative, error)
	GenerateSlides(ctx context.Context, narrative domain.Narrative, brand string) ([]domain.SlideFragment, error)
}

type SlidePersister interface {
	Persist(ctx context.Context, jobID string, brand string, fragments []domain.SlideFragment) ([]string, error)
}

type DeckRenderer interface {
	Render(ctx context.Context, req deck.RenderRequest) (deck.Report, error)
}

type JobDirs interface {
	EnsureJobDir(jobID string) (string, error)
}

type Dependencies struct {
	Store     repository.JobStore
	Retriever ContentRetriever
	Generator Generator
	Persister SlidePersister
	Renderer  DeckRenderer
	Dirs      JobDirs
	LogoPath  string
	Logger    zerolog.Logger

	// Development records the full error chain on failed jobs. Otherwise the
	// job only names the phase that failed.
	Development bool
}

// Orchestrator drives one job through the four phases. Phases run strictly
// in order and the first failure ends the job as Failed.
type Orchestrator struct {
	store     repository.JobStore
	retriever ContentRetriever
	generator Generator
	persister SlidePersister
	renderer  DeckRenderer
	dirs      JobDirs
	logoPath  string
	logger    zerolog.Logger
	verbose   bool
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		store:     deps.Store,
		retriever: deps.Retriever,
		generator: deps.Generator,
		persister: deps.Persister,
		renderer:  deps.Renderer,
		dirs:      deps.Dirs,
		logoPath:  deps.LogoPath,
		logger:    deps.Logger.With().Str("component", "pipeline").Logger(),
		verbose:   deps.Development,
	}
}

// Run processes jobID to a terminal state. Phase failures are recorded on
// the job and Run returns nil; an error means the job could not be driven
// at all (unknown id, illegal transition, store failure).
func (o *Orchestrator) Run(ctx context.Context, jobID string) (err error) {
	logger := o.logger.With().Str("job_id", jobID).Logger()

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err := o.store.TransitionStatus(ctx, jobID, domain.JobStatusProcessing); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}

	started := time.Now()
	logger.Info().Str("source_kind", string(job.Input.SourceKind)).Msg("job processing")

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().
				Interface("panic", recovered).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
			err = o.fail(ctx, logger, jobID, fmt.Errorf("%w: %v", errInternal, recovered))
		}
	}()

	result, runErr := o.execute(ctx, logger, job)
	if runErr != nil {
		return o.fail(ctx, logger, jobID, runErr)
	}

	if err := o.store.Complete(context.WithoutCancel(ctx), jobID, result); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	logger.Info().
		Int("slides", result.SlideCount).
		Int("rendered", result.RenderedSlides).
		Dur("duration", time.Since(started)).
		Msg("job completed")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, job *domain.Job) (domain.JobResult, error) {
	dir, err := o.dirs.EnsureJobDir(job.ID)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("create job directory: %w", err)
	}

	o.enter(ctx, logger, job.ID, domain.PhaseContentAnalysis)
	content, err := o.retriever.Retrieve(ctx, job.Input.Source, job.Input.SourceKind)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("retrieve content: %w", err)
	}
	analysis, err := o.generator.Analyze(ctx, content)
	if err != nil {
		return domain.JobResult{}, err
	}

	o.enter(ctx, logger, job.ID, domain.PhaseNarrativeEngineering)
	narrative, err := o.generator.EngineerNarrative(ctx, analysis)
	if err != nil {
		return domain.JobResult{}, err
	}

	o.enter(ctx, logger, job.ID, domain.PhaseSlideGeneration)
	fragments, err := o.generator.GenerateSlides(ctx, narrative, job.Input.Brand)
	if err != nil {
		return domain.JobResult{}, err
	}
	paths, err := o.persister.Persist(ctx, job.ID, job.Input.Brand, fragments)
	if err != nil {
		return domain.JobResult{}, err
	}

	o.enter(ctx, logger, job.ID, domain.PhasePPTXConversion)
	title := strings.TrimSpace(narrative.Title)
	if title == "" {
		title = defaultTitle
	}
	artifact := filepath.Join(dir, artifactName)
	report, err := o.renderer.Render(ctx, deck.RenderRequest{
		Fragments:  paths,
		OutputPath: artifact,
		LogoPath:   o.logoPath,
		Brand:      job.Input.Brand,
		Title:      title,
	})
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("convert to pptx: %w", err)
	}
	if len(report.Skipped) > 0 {
		logger.Warn().Int("skipped", len(report.Skipped)).Msg("some slides could not be rendered")
	}

	return domain.JobResult{
		ArtifactPath:   artifact,
		SlideCount:     len(fragments),
		RenderedSlides: report.SlidesRendered,
		Title:          title,
	}, nil
}

// enter moves the progress marker. Progress is advisory, so a store error
// is logged and the phase still runs.
func (o *Orchestrator) enter(ctx context.Context, logger zerolog.Logger, jobID string, phase domain.PhaseName) {
	logger.Info().Str("phase", string(phase)).Msg("phase started")
	if err := o.store.AdvanceProgress(ctx, jobID, phase); err != nil {
		logger.Warn().Err(err).Str("phase", string(phase)).Msg("advance progress")
	}
}

func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, jobID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var phase domain.PhaseName
	if job, err := o.store.Get(ctx, jobID); err == nil {
		phase = job.Progress.CurrentPhase
	}
	logger.Error().Err(cause).Str("phase", string(phase)).Msg("job failed")
	if err := o.store.Fail(ctx, jobID, o.failureMessage(phase, cause)); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// failureMessage is what clients read on a failed job. Wrapped causes carry
// provider bodies and fetched URLs, so they stay in the logs unless verbose.
func (o *Orchestrator) failureMessage(phase domain.PhaseName, cause error) string {
	message := "job failed"
	if phase != "" {
		message = string(phase) + " failed"
	}
	switch {
	case o.verbose:
		return message + ": " + cause.Error()
	case errors.Is(cause, errInternal):
		return message + ": " + errInternal.Error()
	}
	return message
}
