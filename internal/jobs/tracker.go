package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/infra"
)

// CompleteFunc receives jobs that finished successfully.
type CompleteFunc func(ctx context.Context, job domain.GenerationJob)

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Logger     *infra.Logger
	OnComplete CompleteFunc
}

// Tracker owns one polling goroutine per in-flight job and persists every
// snapshot it observes.
type Tracker struct {
	poller     *Poller
	repo       domain.JobRepository
	logger     *infra.Logger
	onComplete CompleteFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  map[string]*trackedJob
	finished map[string]*trackedJob
	order    []string
	closed   bool
}

// maxFinished bounds how many poll outcomes are kept for late Wait calls.
const maxFinished = 256

type trackedJob struct {
	cancel context.CancelFunc
	done   chan struct{}
	job    domain.GenerationJob
	err    error
}

// ErrTrackerClosed is returned by Track after Close.
var ErrTrackerClosed = errors.New("jobs: tracker closed")

func NewTracker(poller *Poller, repo domain.JobRepository, opts TrackerOptions) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		poller:     poller,
		repo:       repo,
		logger:     infra.LoggerOrNop(opts.Logger),
		onComplete: opts.OnComplete,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]*trackedJob),
		finished:   make(map[string]*trackedJob),
	}
}

// Track persists job and, when it is not terminal, starts polling it. Tracking
// a job that is already being polled is a no-op.
func (t *Tracker) Track(ctx context.Context, job domain.GenerationJob) error {
	if job.JobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTrackerClosed
	}
	if _, ok := t.running[job.JobID]; ok {
		return nil
	}
	if err := t.repo.Save(ctx, job); err != nil {
		return fmt.Errorf("jobs: save %s: %w", job.JobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}

	jobCtx, cancel := context.WithCancel(t.ctx)
	tj := &trackedJob{cancel: cancel, done: make(chan struct{}), job: job}
	t.running[job.JobID] = tj
	t.wg.Add(1)
	go t.run(jobCtx, tj)
	return nil
}

func (t *Tracker) run(ctx context.Context, tj *trackedJob) {
	defer t.wg.Done()
	defer close(tj.done)
	defer func() {
		t.mu.Lock()
		delete(t.running, tj.job.JobID)
		if !errors.Is(tj.err, context.Canceled) {
			t.remember(tj)
		}
		t.mu.Unlock()
	}()
	defer tj.cancel()

	persist := context.WithoutCancel(ctx)
	final, err := t.poller.Poll(ctx, tj.job, func(job domain.GenerationJob) {
		if saveErr := t.repo.Save(persist, job); saveErr != nil {
			t.logger.Error().Err(saveErr).Str("job_id", job.JobID).Msg("jobs: persist snapshot failed")
		}
	})
	tj.job, tj.err = final, err

	log := t.logger.With().Str("job_id", final.JobID).Str("status", string(final.Status)).Logger()
	switch {
	case err == nil && final.Status == domain.JobStatusCompleted:
		log.Info().Str("artifact", final.ArtifactURL()).Msg("jobs: completed")
		if t.onComplete != nil {
			t.onComplete(persist, final)
		}
	case errors.Is(err, domain.ErrJobFailed):
		log.Warn().Str("error", final.Error).Msg("jobs: failed")
	case errors.Is(err, context.Canceled):
		log.Debug().Msg("jobs: polling stopped")
	case backend.IsStillProcessing(err):
		log.Warn().Msg("jobs: stopped waiting, job may still be processing")
	default:
		log.Error().Err(err).Msg("jobs: polling aborted")
	}
}

// remember keeps the outcome of a finished poll. Callers hold t.mu.
func (t *Tracker) remember(tj *trackedJob) {
	id := tj.job.JobID
	if _, ok := t.finished[id]; !ok {
		t.order = append(t.order, id)
	}
	t.finished[id] = tj
	for len(t.order) > maxFinished {
		delete(t.finished, t.order[0])
		t.order = t.order[1:]
	}
}

// Get returns the last persisted snapshot of a job.
func (t *Tracker) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return t.repo.Get(ctx, jobID)
}

// List returns all persisted jobs.
func (t *Tracker) List(ctx context.Context) ([]domain.GenerationJob, error) {
	return t.repo.List(ctx)
}

// Polling reports whether jobID currently has an active poller.
func (t *Tracker) Polling(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[jobID]
	return ok
}

// Wait blocks until the poller for jobID finishes and returns its outcome.
// A poller that already finished still reports its outcome. For jobs that are
// not being polled it returns the stored snapshot.
func (t *Tracker) Wait(ctx context.Context, jobID string) (domain.GenerationJob, error) {
	t.mu.Lock()
	tj, ok := t.running[jobID]
	if !ok {
		tj, ok = t.finished[jobID]
	}
	t.mu.Unlock()
	if !ok {
		job, err := t.repo.Get(ctx, jobID)
		if err != nil {
			return domain.GenerationJob{}, err
		}
		return *job, terminalErr(*job)
	}
	select {
	case <-ctx.Done():
		return domain.GenerationJob{}, ctx.Err()
	case <-tj.done:
		return tj.job, tj.err
	}
}

// Stop tears down the poller for jobID. The backend job is not cancelled.
func (t *Tracker) Stop(jobID string) bool {
	t.mu.Lock()
	tj, ok := t.running[jobID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	tj.cancel()
	<-tj.done
	return true
}

// Close stops every poller and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

// Resume tracks every persisted job that has not reached a terminal status
// and returns how many were resumed.
func (t *Tracker) Resume(ctx context.Context) (int, error) {
	jobs, err := t.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: list for resume: %w", err)
	}
	resumed := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		if err := t.Track(ctx, job); err != nil {
			return resumed, err
		}
		resumed++
	}
	t.logger.Info().Int("resumed", resumed).Msg("jobs: resumed in-flight jobs")
	return resumed, nil
}
