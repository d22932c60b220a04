package handlers

import (
	"context"
	"errors"
	"net/http"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/jobs"
	"studio/internal/publish"
)

type processingBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// fail maps a service error onto the API error taxonomy. Timeouts are not
// failures: the backend may still finish, so they answer 202.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if backend.IsStillProcessing(err) {
		a.json(w, http.StatusAccepted, processingBody{Status: "processing", Message: backend.ErrTimeout.Error()})
		return
	}
	status, detail := a.classify(r, err)
	a.json(w, status, errorBody{Error: detail})
}

func (a *App) classify(r *http.Request, err error) (int, errorDetail) {
	if backend.IsStillProcessing(err) {
		return http.StatusAccepted, errorDetail{Code: "processing", Message: backend.ErrTimeout.Error()}
	}
	if backend.IsUnreachable(err) {
		return http.StatusBadGateway, errorDetail{Code: "backend_unreachable", Message: backend.ErrUnreachable.Error()}
	}
	if apiErr, ok := backend.AsAPIError(err); ok {
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		code := apiErr.Code
		if code == "" {
			code = "backend_error"
		}
		return status, errorDetail{Code: code, Message: apiErr.Message}
	}

	var jobErr *domain.JobError
	var pubErr *publish.Error
	switch {
	case errors.As(err, &jobErr):
		return http.StatusUnprocessableEntity, errorDetail{Code: "job_failed", Message: jobErr.Message}
	case errors.As(err, &pubErr):
		return http.StatusBadGateway, errorDetail{Code: "publish_failed", Message: pubErr.Message}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicateOperation):
		return http.StatusConflict, errorDetail{Code: "conflict", Message: err.Error()}
	case errors.Is(err, backend.ErrInvalidResponse):
		return http.StatusBadGateway, errorDetail{Code: "bad_gateway", Message: err.Error()}
	case errors.Is(err, jobs.ErrTrackerClosed):
		return http.StatusServiceUnavailable, errorDetail{Code: "unavailable", Message: "service is shutting down"}
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, errorDetail{Code: "canceled", Message: "request canceled"}
	default:
		a.log(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal error"}
	}
}
