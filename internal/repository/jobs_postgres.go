package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresJobStore keeps jobs in Postgres. Each transition is a single
// conditional UPDATE guarded on the previous status.
type PostgresJobStore struct {
	pool *pgxpool.Pool
	now  Clock
}

func NewPostgresJobStore(ctx context.Context, databaseURL string) (*PostgresJobStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresJobStore{pool: pool, now: systemClock}, nil
}

func (s *PostgresJobStore) Close() {
	s.pool.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, input domain.JobInput) (*domain.Job, error) {
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
	encodedInput, err := json.Marshal(job.Input)
	if err != nil {
		return nil, fmt.Errorf("encode job input: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, total_phases, input, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, job.ID, string(job.Status), job.Progress.TotalPhases, encodedInput, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var (
		job          domain.Job
		status       string
		currentPhase string
		input        []byte
		result       []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, status, current_phase, phase_index, total_phases, input, result, error_message, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&status,
		&currentPhase,
		&job.Progress.PhaseIndex,
		&job.Progress.TotalPhases,
		&input,
		&result,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.Progress.CurrentPhase = domain.PhaseName(currentPhase)
	if err := json.Unmarshal(input, &job.Input); err != nil {
		return nil, fmt.Errorf("decode job input: %w", err)
	}
	if len(result) > 0 {
		var decoded domain.JobResult
		if err := json.Unmarshal(result, &decoded); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &decoded
	}
	return &job, nil
}

func (s *PostgresJobStore) TransitionStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	if status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: use complete or fail to enter %s", ErrIllegalTransition, status)
	}
	command, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, jobID, string(status), s.now(), string(domain.JobStatusQueued))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if command.RowsAffected() == 0 {
		return s.explainMiss(ctx, jobID, status)
	}
	return nil
}

func (s *PostgresJobStore) AdvanceProgress(ctx context.Context, jobID string, phase domain.PhaseName) error {
	ordinal, ok := domain.PhaseOrdinal(phase)
	if !ok {
		return nil
	}
	command, err := s.pool.Exec(ctx, `
		UPDATE jobs SET current_phase = $2, phase_index = $3, updated_at = $4
		WHERE id = $1
	`, jobID, string(phase), ordinal, s.now())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresJobStore) Complete(ctx context.Context, jobID string, result domain.JobResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	command, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, result = $3, error_message = '', updated_at = $4
		WHERE id = $1 AND status = $5
	`, jobID, string(domain.JobStatusCompleted), encoded, s.now(), string(domain.JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return s.explainMiss(ctx, jobID, domain.JobStatusCompleted)
	}
	return nil
}

func (s *PostgresJobStore) Fail(ctx context.Context, jobID string, message string) error {
	command, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, result = NULL, error_message = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, jobID, string(domain.JobStatusFailed), message, s.now(), string(domain.JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return s.explainMiss(ctx, jobID, domain.JobStatusFailed)
	}
	return nil
}

func (s *PostgresJobStore) Delete(ctx context.Context, jobID string) error {
	command, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresJobStore) Sweep(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := s.now().Add(-maxAge)
	rows, err := s.pool.Query(ctx, `
		DELETE FROM jobs
		WHERE created_at < $1 AND status <> $2
		RETURNING id
	`, cutoff, string(domain.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("sweep jobs: %w", err)
	}
	defer rows.Close()

	removed := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan swept job: %w", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sweep jobs: %w", err)
	}
	return removed, nil
}

// explainMiss turns a zero-row conditional update into the matching sentinel.
func (s *PostgresJobStore) explainMiss(ctx context.Context, jobID string, to domain.JobStatus) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query job status: %w", err)
	}
	if err := checkTransition(domain.JobStatus(status), to); err != nil {
		return err
	}
	return fmt.Errorf("%w: concurrent update on %s", ErrIllegalTransition, jobID)
}
