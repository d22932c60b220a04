package jobs

import (
	"context"
	"time"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/infra"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultPollRequest  = 30 * time.Second
)

// PollerOptions configures a Poller. Deadline bounds the whole wait; zero
// means poll until a terminal status or cancellation.
type PollerOptions struct {
	Interval       time.Duration
	Deadline       time.Duration
	RequestTimeout time.Duration
	Logger         *infra.Logger
	Now            func() time.Time
}

// Poller drives a job to a terminal status with periodic status requests.
type Poller struct {
	client         Backend
	interval       time.Duration
	deadline       time.Duration
	requestTimeout time.Duration
	logger         *infra.Logger
	now            func() time.Time
}

func NewPoller(client Backend, opts PollerOptions) *Poller {
	p := &Poller{
		client:         client,
		interval:       opts.Interval,
		deadline:       opts.Deadline,
		requestTimeout: opts.RequestTimeout,
		logger:         infra.LoggerOrNop(opts.Logger),
		now:            opts.Now,
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.requestTimeout <= 0 {
		p.requestTimeout = defaultPollRequest
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Poll issues one status request per tick until the job is terminal. No
// request is made after a terminal status is observed.
//
// A completed job is returned with a nil error. A failed job is returned with
// a *domain.JobError. Status request timeouts keep polling; any other request
// error stops polling and is returned with the last known state. When the
// overall deadline passes, backend.ErrTimeout is returned.
func (p *Poller) Poll(ctx context.Context, job domain.GenerationJob, onUpdate func(domain.GenerationJob)) (domain.GenerationJob, error) {
	if job.Status.Terminal() {
		return job, terminalErr(job)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.deadline > 0 {
		timer := time.NewTimer(p.deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	log := p.logger.With().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Logger()
	for {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-deadline:
			log.Warn().Str("status", string(job.Status)).Msg("jobs: poll deadline reached")
			return job, backend.ErrTimeout
		case <-ticker.C:
		}

		resp, err := p.client.JobStatus(ctx, job.Kind, job.JobID, p.requestTimeout)
		if err != nil {
			if backend.IsStillProcessing(err) && ctx.Err() == nil {
				log.Debug().Msg("jobs: status request timed out, still running")
				continue
			}
			log.Error().Err(err).Msg("jobs: status request failed")
			return job, err
		}
		update, err := resp.Update()
		if err != nil {
			return job, err
		}
		if err := job.Apply(update, p.now().UTC()); err != nil {
			log.Warn().Err(err).Msg("jobs: ignored status update")
			continue
		}
		log.Debug().Str("status", string(job.Status)).Int("progress", job.Progress).Msg("jobs: status")
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.Terminal() {
			if job.Status == domain.JobStatusCompleted && job.ArtifactURL() == "" {
				log.Warn().Msg("jobs: completed without artifact url")
			}
			return job, terminalErr(job)
		}
	}
}

func terminalErr(job domain.GenerationJob) error {
	if job.Status == domain.JobStatusFailed {
		return &domain.JobError{JobID: job.JobID, Message: job.Error}
	}
	return nil
}
