// Package jobs submits generation jobs to the backend and polls them until
// they reach a terminal status.
package jobs

import (
	"context"
	"time"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/infra"
)

// Backend is the part of the backend client jobs depend on.
type Backend interface {
	SubmitJob(ctx context.Context, kind domain.JobKind, req backend.GenerateRequest, timeout time.Duration) (*backend.GenerateResponse, error)
	JobStatus(ctx context.Context, kind domain.JobKind, jobID string, timeout time.Duration) (*backend.StatusResponse, error)
}

const (
	defaultVideoSubmitTimeout = 10 * time.Minute
	defaultImageSubmitTimeout = 2 * time.Minute
)

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	VideoTimeout  time.Duration
	ImageTimeout  time.Duration
	DefaultLocale string
	Logger        *infra.Logger
	Now           func() time.Time
}

// Submitter issues generation requests.
type Submitter struct {
	client        Backend
	videoTimeout  time.Duration
	imageTimeout  time.Duration
	defaultLocale string
	logger        *infra.Logger
	now           func() time.Time
}

func NewSubmitter(client Backend, opts SubmitterOptions) *Submitter {
	s := &Submitter{
		client:        client,
		videoTimeout:  opts.VideoTimeout,
		imageTimeout:  opts.ImageTimeout,
		defaultLocale: opts.DefaultLocale,
		logger:        infra.LoggerOrNop(opts.Logger),
		now:           opts.Now,
	}
	if s.videoTimeout <= 0 {
		s.videoTimeout = defaultVideoSubmitTimeout
	}
	if s.imageTimeout <= 0 {
		s.imageTimeout = defaultImageSubmitTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TimeoutFor returns the submit timeout applied to kind.
func (s *Submitter) TimeoutFor(kind domain.JobKind) time.Duration {
	if kind == domain.JobKindImage {
		return s.imageTimeout
	}
	return s.videoTimeout
}

// Submit validates req and issues exactly one submit request. A timeout is
// returned as backend.ErrTimeout: the job may still be processing.
func (s *Submitter) Submit(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error) {
	jsoncfg.Normalize(&req, s.defaultLocale)
	if err := jsoncfg.Validate(req); err != nil {
		return domain.GenerationJob{}, err
	}

	payload := backend.GenerateRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		Locale:      req.Locale,
	}
	if req.Kind == domain.JobKindVideo {
		payload.Duration = req.Duration
	}

	resp, err := s.client.SubmitJob(ctx, req.Kind, payload, s.TimeoutFor(req.Kind))
	if err != nil {
		if backend.IsStillProcessing(err) {
			s.logger.Warn().Str("kind", string(req.Kind)).Str("model", req.Model).Msg("jobs: submit timed out, generation may continue in background")
		}
		return domain.GenerationJob{}, err
	}

	now := s.now().UTC()
	job := domain.GenerationJob{
		JobID:     resp.JobID,
		Kind:      req.Kind,
		Status:    resp.InitialStatus(),
		Model:     req.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.logger.Info().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Str("status", string(job.Status)).Msg("jobs: submitted")
	return job, nil
}
