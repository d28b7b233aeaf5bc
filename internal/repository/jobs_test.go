package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*MemoryJobStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryJobStore(WithClock(clock.Now)), clock
}

func rawInput() domain.JobInput {
	return domain.JobInput{Source: "# Title\n\nBody", SourceKind: domain.SourceKindRaw, Brand: "traefik"}
}

func TestCreateInitializesQueuedJob(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, domain.Progress{TotalPhases: 4}, job.Progress)
	assert.Nil(t, job.Result)
	assert.Empty(t, job.Error)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	assert.Equal(t, clock.Now(), job.UpdatedAt)

	other, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)
}

func TestGetUnknownJob(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsSnapshot(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	snapshot, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	snapshot.Status = domain.JobStatusFailed

	fresh, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, fresh.Status)
}

func TestLifecycleToCompleted(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing))
	require.NoError(t, store.AdvanceProgress(ctx, job.ID, domain.PhaseSlideGeneration))

	clock.Advance(time.Second)
	result := domain.JobResult{ArtifactPath: "out/presentation.pptx", SlideCount: 3, RenderedSlides: 3, Title: "Deck"}
	require.NoError(t, store.Complete(ctx, job.ID, result))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, result, *got.Result)
	assert.Empty(t, got.Error)
	assert.Equal(t, domain.PhaseSlideGeneration, got.Progress.CurrentPhase)
	assert.Equal(t, 3, got.Progress.PhaseIndex)
	assert.Equal(t, job.CreatedAt.Add(2*time.Second), got.UpdatedAt)
}

func TestFailAttachesMessageOnly(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	require.NoError(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing))
	require.NoError(t, store.Fail(ctx, job.ID, "parse narrative response: boom"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "parse narrative response: boom", got.Error)
	assert.Nil(t, got.Result)
}

func TestIllegalTransitions(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Complete(ctx, job.ID, domain.JobResult{}), ErrIllegalTransition)
	assert.ErrorIs(t, store.Fail(ctx, job.ID, "early"), ErrIllegalTransition)
	assert.ErrorIs(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusCompleted), ErrIllegalTransition)
	assert.ErrorIs(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusQueued), ErrIllegalTransition)

	require.NoError(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing))
	assert.ErrorIs(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing), ErrIllegalTransition)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
}

func TestTerminalJobsNeverTransitionAgain(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	require.NoError(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing))
	require.NoError(t, store.Complete(ctx, job.ID, domain.JobResult{ArtifactPath: "a", SlideCount: 1}))

	assert.ErrorIs(t, store.Fail(ctx, job.ID, "late"), ErrTerminal)
	assert.ErrorIs(t, store.Complete(ctx, job.ID, domain.JobResult{}), ErrTerminal)
	assert.ErrorIs(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing), ErrIllegalTransition)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Result)
	assert.Equal(t, "a", got.Result.ArtifactPath)
}

func TestAdvanceProgressIgnoresUnknownPhase(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, store.AdvanceProgress(ctx, job.ID, domain.PhaseName("rendering-magic")))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Progress{TotalPhases: 4}, got.Progress)
	assert.Equal(t, job.UpdatedAt, got.UpdatedAt)
}

func TestSweepKeepsProcessingJobs(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	queued, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	processing, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	completed, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	failed, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	require.NoError(t, store.TransitionStatus(ctx, processing.ID, domain.JobStatusProcessing))
	require.NoError(t, store.TransitionStatus(ctx, completed.ID, domain.JobStatusProcessing))
	require.NoError(t, store.Complete(ctx, completed.ID, domain.JobResult{ArtifactPath: "x", SlideCount: 1}))
	require.NoError(t, store.TransitionStatus(ctx, failed.ID, domain.JobStatusProcessing))
	require.NoError(t, store.Fail(ctx, failed.ID, "boom"))

	clock.Advance(30 * time.Minute)
	fresh, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	removed, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{queued.ID, completed.ID, failed.ID}, removed)

	_, err = store.Get(ctx, processing.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, completed.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesJob(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, job.ID))
	assert.ErrorIs(t, store.Delete(ctx, job.ID), ErrNotFound)
}

func TestConcurrentReadsNeverSeeTornRecords(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	job, err := store.Create(ctx, rawInput())
	require.NoError(t, err)
	require.NoError(t, store.TransitionStatus(ctx, job.ID, domain.JobStatusProcessing))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, phase := range domain.Phases() {
			_ = store.AdvanceProgress(ctx, job.ID, phase.Name)
		}
		_ = store.Complete(ctx, job.ID, domain.JobResult{ArtifactPath: "p", SlideCount: 2})
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got, err := store.Get(ctx, job.ID)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if got.Status == domain.JobStatusCompleted && got.Result == nil {
				t.Errorf("completed job without result")
				return
			}
		}
	}()
	wg.Wait()
}

type recordingFiles struct {
	mu      sync.Mutex
	removed []string
}

func (f *recordingFiles) RemoveJob(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, jobID)
	return nil
}

func TestSweeperRemovesJobDirectories(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	old, err := store.Create(ctx, rawInput())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	files := &recordingFiles{}
	sweeper := NewSweeper(store, files, time.Hour, time.Minute, zerolog.Nop())

	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, removed)
	assert.Equal(t, []string{old.ID}, files.removed)
}

func TestSweeperStartStop(t *testing.T) {
	store, _ := newTestStore()
	sweeper := NewSweeper(store, nil, time.Hour, time.Millisecond, zerolog.Nop())

	sweeper.Start(context.Background())
	sweeper.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop()
}
