package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/kv"

	"golang.org/x/sync/errgroup"
)

// Fetcher resolves artifact references to bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// Record notes where a job's artifact was archived.
type Record struct {
	JobID      string    `json:"job_id"`
	Location   string    `json:"location"`
	Source     string    `json:"source"`
	Bytes      int       `json:"bytes"`
	ArchivedAt time.Time `json:"archived_at"`
}

// JobArchiver copies finished job artifacts into an Archiver and keeps a
// record per job so each artifact is archived once.
type JobArchiver struct {
	fetcher Fetcher
	store   Archiver
	records *kv.Store
	logger  *infra.Logger
	now     func() time.Time
}

func NewJobArchiver(fetcher Fetcher, store Archiver, records kv.Backend, logger *infra.Logger) *JobArchiver {
	return &JobArchiver{
		fetcher: fetcher,
		store:   store,
		records: kv.NewStore(records, kv.NamespaceArchives),
		logger:  infra.LoggerOrNop(logger),
		now:     time.Now,
	}
}

// Archived returns the archive record for jobID, if any.
func (a *JobArchiver) Archived(ctx context.Context, jobID string) (*Record, error) {
	var rec Record
	if err := a.records.GetJSON(ctx, jobID, &rec); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: load archive record %s: %w", jobID, err)
	}
	return &rec, nil
}

// Archive downloads the artifact of a completed job and writes it under
// jobs/<kind>/<id><ext>. A job archived before is not fetched again.
func (a *JobArchiver) Archive(ctx context.Context, job domain.GenerationJob) (string, error) {
	if job.Status != domain.JobStatusCompleted {
		return "", fmt.Errorf("%w: job %s is %s", domain.ErrInvalidInput, job.JobID, job.Status)
	}
	ref := job.ArtifactURL()
	if ref == "" {
		return "", fmt.Errorf("%w: job %s has no artifact", domain.ErrInvalidInput, job.JobID)
	}
	if rec, err := a.Archived(ctx, job.JobID); err != nil {
		return "", err
	} else if rec != nil {
		return rec.Location, nil
	}

	data, mimeType, err := a.fetcher.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("jobs/%s/%s%s", job.Kind, job.JobID, ExtensionFor(mimeType))
	location, err := a.store.Write(ctx, key, data, mimeType)
	if err != nil {
		return "", err
	}
	rec := Record{JobID: job.JobID, Location: location, Source: ref, Bytes: len(data), ArchivedAt: a.now().UTC()}
	if err := a.records.SetJSON(ctx, job.JobID, rec); err != nil {
		return location, fmt.Errorf("storage: save archive record %s: %w", job.JobID, err)
	}
	a.logger.Info().
		Str("job_id", job.JobID).
		Str("location", location).
		Int("bytes", len(data)).
		Msg("artifact archived")
	return location, nil
}

// OnComplete adapts Archive to the tracker's completion hook. Failures are
// logged; the job itself already succeeded.
func (a *JobArchiver) OnComplete(ctx context.Context, job domain.GenerationJob) {
	if _, err := a.Archive(ctx, job); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("archive artifact failed")
	}
}

// ArchivePending archives every completed job in list that has no record yet,
// running up to workers downloads at once. It returns how many were archived.
// Individual failures are logged and skipped.
func (a *JobArchiver) ArchivePending(ctx context.Context, list []domain.GenerationJob, workers int) (int, error) {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]bool, len(list))
	for i, job := range list {
		if job.Status != domain.JobStatusCompleted || job.ArtifactURL() == "" {
			continue
		}
		rec, err := a.Archived(gctx, job.JobID)
		if err != nil {
			_ = g.Wait()
			return 0, err
		}
		if rec != nil {
			continue
		}
		g.Go(func() error {
			if _, err := a.Archive(gctx, job); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("archive pending artifact failed")
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	archived := 0
	for _, ok := range results {
		if ok {
			archived++
		}
	}
	return archived, nil
}
