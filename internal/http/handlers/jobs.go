package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/repository"
	"github.com/iago/pptx-generator-back/internal/service"
)

const downloadName = "presentation.pptx"

type progressView struct {
	CurrentPhase *string `json:"currentPhase"`
	PhaseIndex   int     `json:"phaseIndex"`
	TotalPhases  int     `json:"totalPhases"`
}

type resultView struct {
	DownloadURL    string `json:"downloadUrl"`
	SlideCount     int    `json:"slideCount"`
	RenderedSlides int    `json:"renderedSlides"`
	Title          string `json:"title"`
}

type jobView struct {
	JobID     string       `json:"jobId"`
	Status    string       `json:"status"`
	Progress  progressView `json:"progress"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Result    *resultView  `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job id is required")
		return
	}

	job, err := api.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		api.writeInternal(w, r, "failed to load job", err)
		return
	}

	writeJSON(w, http.StatusOK, newJobView(job))
}

func (api *API) Download(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))

	artifact, err := api.jobs.Download(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "presentation not found")
		case errors.Is(err, service.ErrNotReady):
			writeError(w, r, http.StatusConflict, "not_ready", "presentation is not ready")
		default:
			api.writeInternal(w, r, "failed to load presentation", err)
		}
		return
	}

	file, err := os.Open(artifact.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, "not_found", "presentation not found")
			return
		}
		api.writeInternal(w, r, "failed to open presentation", err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.presentationml.presentation")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	http.ServeContent(w, r, downloadName, artifact.ModTime, file)
}

func newJobView(job *domain.Job) jobView {
	view := jobView{
		JobID:  job.ID,
		Status: string(job.Status),
		Progress: progressView{
			PhaseIndex:  job.Progress.PhaseIndex,
			TotalPhases: job.Progress.TotalPhases,
		},
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Progress.CurrentPhase != "" {
		phase := string(job.Progress.CurrentPhase)
		view.Progress.CurrentPhase = &phase
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		if job.Result != nil {
			view.Result = &resultView{
				DownloadURL:    statusURL(job.ID) + "/download",
				SlideCount:     job.Result.SlideCount,
				RenderedSlides: job.Result.RenderedSlides,
				Title:          job.Result.Title,
			}
		}
	case domain.JobStatusFailed:
		view.Error = job.Error
	}
	return view
}
