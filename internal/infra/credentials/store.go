// Package credentials keeps API tokens for the content backend and connected
// providers in the key-value store.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/kv"
)

const (
	// ProviderBackend holds the bearer token for the content backend.
	ProviderBackend = "backend"
)

// ErrTokenRequired is returned when an empty token is stored.
var ErrTokenRequired = errors.New("credentials: token is required")

type record struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	kv  *kv.Store
	now func() time.Time
}

func NewStore(backend kv.Backend) *Store {
	return &Store{kv: kv.NewStore(backend, kv.NamespaceCredentials), now: time.Now}
}

// BackendToken returns the stored backend token, or "" when none is set.
func (s *Store) BackendToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderBackend)
}

// SetBackendToken stores the backend token.
func (s *Store) SetBackendToken(ctx context.Context, token string) error {
	return s.SetToken(ctx, ProviderBackend, token)
}

// Token returns the token stored for provider. A missing entry is not an error.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var rec record
	if err := s.kv.GetJSON(ctx, normalize(provider), &rec); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s: %w", provider, err)
	}
	return strings.TrimSpace(rec.Token), nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenRequired
	}
	if err := s.kv.SetJSON(ctx, normalize(provider), record{Token: token, UpdatedAt: s.now().UTC()}); err != nil {
		return fmt.Errorf("credentials: store %s: %w", provider, err)
	}
	return nil
}

// Delete forgets the token for provider.
func (s *Store) Delete(ctx context.Context, provider string) error {
	err := s.kv.Remove(ctx, normalize(provider))
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("credentials: delete %s: %w", provider, err)
	}
	return nil
}

// Resolve prefers an explicitly configured token and falls back to the stored
// one.
func (s *Store) Resolve(ctx context.Context, configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	return s.BackendToken(ctx)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
