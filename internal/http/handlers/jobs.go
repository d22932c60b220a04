package handlers

import (
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type jobCreateRequest struct {
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	Model       string `json:"model"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspect_ratio"`
	Locale      string `json:"locale"`
	Wait        bool   `json:"wait"`
}

type jobView struct {
	domain.GenerationJob
	Polling bool `json:"polling"`
}

func (req jobCreateRequest) toDomain(r *http.Request) (domain.GenerationRequest, error) {
	kind, err := domain.ParseJobKind(req.Kind)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	return domain.GenerationRequest{
		Kind:        kind,
		Prompt:      req.Prompt,
		Duration:    req.Duration,
		Model:       req.Model,
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		Locale:      locale,
	}, nil
}

// JobsCreate submits a generation job and starts tracking it. With wait set
// the response is held until the job finishes.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	genReq, err := req.toDomain(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	keepWriting(w)

	if req.Wait {
		job, err := a.Jobs.Generate(r.Context(), genReq)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, jobView{GenerationJob: job})
		return
	}
	job, err := a.Jobs.Create(r.Context(), genReq)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobView{GenerationJob: job, Polling: a.Jobs.Polling(job.JobID)})
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.Jobs.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobView, 0, len(list))
	for _, job := range list {
		items = append(items, jobView{GenerationJob: job, Polling: a.Jobs.Polling(job.JobID)})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, jobView{GenerationJob: *job, Polling: a.Jobs.Polling(jobID)})
}

// JobStop stops polling a job. The backend keeps processing it.
func (a *App) JobStop(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := a.Jobs.Get(r.Context(), jobID); err != nil {
		a.fail(w, r, err)
		return
	}
	stopped := a.Jobs.Stop(jobID)
	a.json(w, http.StatusOK, map[string]any{"job_id": jobID, "stopped": stopped})
}
