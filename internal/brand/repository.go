package brand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"studio/internal/domain"
	"studio/internal/kv"
)

// KVRepository stores brand sources in the sources namespace.
type KVRepository struct {
	store *kv.Store
}

func NewKVRepository(backend kv.Backend) *KVRepository {
	return &KVRepository{store: kv.NewStore(backend, kv.NamespaceSources)}
}

func (r *KVRepository) Save(ctx context.Context, source domain.BrandContextSource) error {
	return r.store.SetJSON(ctx, source.ID, source)
}

func (r *KVRepository) Get(ctx context.Context, id string) (*domain.BrandContextSource, error) {
	var source domain.BrandContextSource
	if err := r.store.GetJSON(ctx, id, &source); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &source, nil
}

// List returns sources in the order they were added.
func (r *KVRepository) List(ctx context.Context) ([]domain.BrandContextSource, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BrandContextSource, 0, len(entries))
	for _, e := range entries {
		var source domain.BrandContextSource
		if err := json.Unmarshal(e.Value, &source); err != nil {
			return nil, fmt.Errorf("brand: decode %s: %w", e.Key, err)
		}
		out = append(out, source)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (r *KVRepository) Delete(ctx context.Context, id string) error {
	return r.store.Remove(ctx, id)
}

var _ domain.SourceRepository = (*KVRepository)(nil)
