package domain

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SourceKind tells the retrieval service how to interpret JobInput.Source.
type SourceKind string

const (
	SourceKindRaw       SourceKind = "raw"
	SourceKindReference SourceKind = "reference"
)

func (k SourceKind) Valid() bool {
	return k == SourceKindRaw || k == SourceKindReference
}

// JobInput is the immutable snapshot of the creation request.
type JobInput struct {
	Source     string          `json:"source"`
	SourceKind SourceKind      `json:"source_kind"`
	Brand      string          `json:"brand"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type Progress struct {
	CurrentPhase PhaseName `json:"current_phase,omitempty"`
	PhaseIndex   int       `json:"phase_index"`
	TotalPhases  int       `json:"total_phases"`
}

// JobResult is attached only to completed jobs.
type JobResult struct {
	ArtifactPath   string `json:"artifact_path"`
	SlideCount     int    `json:"slide_count"`
	RenderedSlides int    `json:"rendered_slides"`
	Title          string `json:"title"`
}

// Job is the async unit driven through the generation pipeline.
type Job struct {
	ID        string
	Status    JobStatus
	Progress  Progress
	Input     JobInput
	Result    *JobResult
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
