package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/queue"
	"github.com/iago/pptx-generator-back/internal/service"
	"github.com/rs/zerolog"
)

type generateRequest struct {
	Source     string          `json:"source" validate:"required,max=2000000"`
	SourceType string          `json:"sourceType" validate:"omitempty,oneof=url markdown raw reference"`
	Brand      string          `json:"brand" validate:"omitempty,max=64"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type generateResponse struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	StatusURL string `json:"statusUrl"`
}

// sourceKinds maps the public sourceType values to retrieval kinds.
var sourceKinds = map[string]domain.SourceKind{
	"url":       domain.SourceKindReference,
	"reference": domain.SourceKindReference,
	"markdown":  domain.SourceKindRaw,
	"raw":       domain.SourceKindRaw,
}

func (api *API) Generate(w http.ResponseWriter, r *http.Request) {
	var request generateRequest
	if err := api.decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.Source = strings.TrimSpace(request.Source)
	if request.SourceType == "" {
		request.SourceType = "url"
	}
	if err := api.validate.Struct(request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	kind := sourceKinds[request.SourceType]
	if kind == domain.SourceKindReference {
		if err := api.validate.Var(request.Source, "http_url"); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "source must be an http(s) URL when sourceType is url")
			return
		}
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if !api.reserveIdempotencyKey(w, r, idempotencyKey, payloadHash) {
			return
		}
	}

	job, err := api.jobs.Submit(r.Context(), domain.JobInput{
		Source:     request.Source,
		SourceKind: kind,
		Brand:      request.Brand,
		Options:    request.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": "))
		case errors.Is(err, queue.ErrQueueFull):
			w.Header().Set("Retry-After", "5")
			writeError(w, r, http.StatusServiceUnavailable, "queue_full", "too many presentations in progress, retry later")
		default:
			api.writeInternal(w, r, "failed to create job", err)
		}
		if idempotencyKey != "" {
			api.idempotency.Release(idempotencyKey, "")
		}
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Complete(idempotencyKey, job.ID)
	}
	zerolog.Ctx(r.Context()).Info().Str("job_id", job.ID).Str("source_type", request.SourceType).Msg("job accepted")
	writeAccepted(w, job)
}

// reserveIdempotencyKey reports whether the caller owns key and should submit
// a new job. Otherwise the response has already been written: the replayed
// job, or a conflict for a different payload or a submission still in flight.
func (api *API) reserveIdempotencyKey(w http.ResponseWriter, r *http.Request, key string, payloadHash uint64) bool {
	for attempt := 0; attempt < 2; attempt++ {
		entry, reserved := api.idempotency.Reserve(key, payloadHash)
		if reserved {
			return true
		}
		if entry.PayloadHash != payloadHash {
			writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
			return false
		}
		if entry.JobID == "" {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is still being processed")
			return false
		}
		job, err := api.jobs.Get(r.Context(), entry.JobID)
		if err == nil {
			writeAccepted(w, job)
			return false
		}
		// The job expired from the store; drop the stale key and claim it again.
		api.idempotency.Release(key, entry.JobID)
	}
	writeError(w, r, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is still being processed")
	return false
}

func writeAccepted(w http.ResponseWriter, job *domain.Job) {
	w.Header().Set("Location", statusURL(job.ID))
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, generateResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		StatusURL: statusURL(job.ID),
	})
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid request"
	}
	field := fieldErrors[0]
	switch field.Field() {
	case "Source":
		if field.Tag() == "required" {
			return "source is required"
		}
		return "source is too large"
	case "SourceType":
		return `sourceType must be one of "url", "markdown", "raw" or "reference"`
	case "Brand":
		return "brand is too long"
	}
	return "invalid request"
}

func statusURL(jobID string) string {
	return "/api/jobs/" + jobID
}
