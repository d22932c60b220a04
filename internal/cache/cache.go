// Package cache keeps finished artifacts so a prompt that was already paid for
// is never generated twice.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/kv"
)

// GenerateFunc produces an artifact reference (URL or data URI).
type GenerateFunc func(ctx context.Context) (string, error)

// Options configures a Cache.
type Options struct {
	Logger *infra.Logger
	Now    func() time.Time
}

// Cache stores artifacts in the artifacts namespace. Entries are only removed
// by Clear or ClearAll.
type Cache struct {
	store  *kv.Store
	group  singleflight.Group
	logger *infra.Logger
	now    func() time.Time
}

func New(backend kv.Backend, opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:  kv.NewStore(backend, kv.NamespaceArtifacts),
		logger: infra.LoggerOrNop(opts.Logger),
		now:    now,
	}
}

// Get returns the cached artifact for key, or nil when there is none.
func (c *Cache) Get(ctx context.Context, key string) (*domain.CachedArtifact, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	var artifact domain.CachedArtifact
	if err := c.store.GetJSON(ctx, key, &artifact); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

// Set stores data under key, replacing any previous artifact.
func (c *Cache) Set(ctx context.Context, key, data string) (*domain.CachedArtifact, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, fmt.Errorf("%w: artifact data is required", domain.ErrInvalidInput)
	}
	artifact := domain.CachedArtifact{Key: key, Data: data, Timestamp: c.now().UTC()}
	if err := c.store.SetJSON(ctx, key, artifact); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("key", key).Bool("data_uri", artifact.IsDataURI()).Msg("cache: stored artifact")
	return &artifact, nil
}

// Clear removes one artifact.
func (c *Cache) Clear(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return c.store.Remove(ctx, key)
}

// ClearAll removes every artifact.
func (c *Cache) ClearAll(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// List returns all cached artifacts ordered by key.
func (c *Cache) List(ctx context.Context) ([]domain.CachedArtifact, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CachedArtifact, 0, len(entries))
	for _, e := range entries {
		var artifact domain.CachedArtifact
		if err := json.Unmarshal(e.Value, &artifact); err != nil {
			return nil, fmt.Errorf("cache: decode %s: %w", e.Key, err)
		}
		out = append(out, artifact)
	}
	return out, nil
}

// GetOrCreate returns the cached artifact for key without calling generate.
// On a miss generate runs once, its result is stored, and concurrent callers
// for the same key share that single run. created is true only for the caller
// whose generate produced the artifact.
func (c *Cache) GetOrCreate(ctx context.Context, key string, generate GenerateFunc) (artifact *domain.CachedArtifact, created bool, err error) {
	key, err = normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	if cached, err := c.Get(ctx, key); err != nil || cached != nil {
		return cached, false, err
	}

	ran := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		ran = true
		if cached, err := c.Get(ctx, key); err != nil || cached != nil {
			return result{artifact: cached}, err
		}
		c.logger.Info().Str("key", key).Msg("cache: miss, generating")
		data, err := generate(ctx)
		if err != nil {
			return result{}, err
		}
		stored, err := c.Set(ctx, key, data)
		if err != nil {
			return result{}, err
		}
		return result{artifact: stored, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.artifact, r.created && ran, nil
}

type result struct {
	artifact *domain.CachedArtifact
	created  bool
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: cache key is required", domain.ErrInvalidInput)
	}
	return key, nil
}
