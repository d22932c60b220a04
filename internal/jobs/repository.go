package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"studio/internal/domain"
	"studio/internal/kv"
)

// KVRepository stores job snapshots in the jobs namespace.
type KVRepository struct {
	store *kv.Store
}

func NewKVRepository(backend kv.Backend) *KVRepository {
	return &KVRepository{store: kv.NewStore(backend, kv.NamespaceJobs)}
}

func (r *KVRepository) Save(ctx context.Context, job domain.GenerationJob) error {
	if job.JobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	return r.store.SetJSON(ctx, job.JobID, job)
}

func (r *KVRepository) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := r.store.GetJSON(ctx, jobID, &job); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List returns all jobs, newest first.
func (r *KVRepository) List(ctx context.Context) ([]domain.GenerationJob, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.GenerationJob, 0, len(entries))
	for _, e := range entries {
		var job domain.GenerationJob
		if err := json.Unmarshal(e.Value, &job); err != nil {
			return nil, fmt.Errorf("jobs: decode %s: %w", e.Key, err)
		}
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var _ domain.JobRepository = (*KVRepository)(nil)
