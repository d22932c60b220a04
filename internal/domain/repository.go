package domain

import "context"

// JobRepository persists job snapshots so polling can resume after restart.
type JobRepository interface {
	Save(ctx context.Context, job GenerationJob) error
	Get(ctx context.Context, jobID string) (*GenerationJob, error)
	List(ctx context.Context) ([]GenerationJob, error)
}

// SourceRepository persists registered brand-context sources.
type SourceRepository interface {
	Save(ctx context.Context, source BrandContextSource) error
	Get(ctx context.Context, id string) (*BrandContextSource, error)
	List(ctx context.Context) ([]BrandContextSource, error)
	Delete(ctx context.Context, id string) error
}
