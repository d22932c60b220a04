package jobs

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/backend"
	"studio/internal/domain"
)

// Service combines submission with tracking.
type Service struct {
	submitter *Submitter
	tracker   *Tracker
}

func NewService(submitter *Submitter, tracker *Tracker) *Service {
	return &Service{submitter: submitter, tracker: tracker}
}

// Tracker exposes the underlying tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Get returns a tracked job.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return s.tracker.Get(ctx, jobID)
}

// List returns every tracked job, newest first.
func (s *Service) List(ctx context.Context) ([]domain.GenerationJob, error) {
	return s.tracker.List(ctx)
}

// Polling reports whether jobID is still being polled.
func (s *Service) Polling(jobID string) bool { return s.tracker.Polling(jobID) }

// Stop stops polling jobID. The backend job itself is not cancelled.
func (s *Service) Stop(jobID string) bool { return s.tracker.Stop(jobID) }

// Create submits req and starts tracking the resulting job.
func (s *Service) Create(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error) {
	job, err := s.submitter.Submit(ctx, req)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	if err := s.tracker.Track(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// Generate submits req and waits for the job to complete. It returns an
// error unless the job completed with an artifact.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error) {
	job, err := s.Create(ctx, req)
	if err != nil {
		return job, err
	}
	final, err := s.tracker.Wait(ctx, job.JobID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.tracker.Stop(job.JobID)
		}
		return final, err
	}
	if final.ArtifactURL() == "" {
		return final, fmt.Errorf("jobs: job %s completed without an artifact: %w", final.JobID, backend.ErrInvalidResponse)
	}
	return final, nil
}
