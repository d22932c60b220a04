// Package kv is the namespaced key-value store behind jobs, cached artifacts,
// brand sources and the integration snapshot. Values are opaque JSON blobs.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Namespaces used by the studio.
const (
	NamespaceJobs         = "jobs"
	NamespaceArtifacts    = "artifacts"
	NamespaceSources      = "sources"
	NamespaceIntegrations = "integrations"
	NamespaceCredentials  = "credentials"
	NamespaceArchives     = "archives"
)

// ErrNotFound is returned when a key is absent from its namespace.
var ErrNotFound = errors.New("kv: key not found")

// Entry is a stored value together with its key.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Backend persists values grouped by namespace. Implementations must be safe
// for concurrent use.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Remove(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) ([]Entry, error)
	Clear(ctx context.Context, namespace string) error
}

// Store binds a Backend to one namespace.
type Store struct {
	backend   Backend
	namespace string
}

// NewStore returns a store scoped to namespace.
func NewStore(backend Backend, namespace string) *Store {
	return &Store{backend: backend, namespace: namespace}
}

// Namespace returns the namespace this store writes to.
func (s *Store) Namespace() string { return s.namespace }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, s.namespace, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.backend.Set(ctx, s.namespace, key, value)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.backend.Remove(ctx, s.namespace, key)
}

func (s *Store) List(ctx context.Context) ([]Entry, error) {
	return s.backend.List(ctx, s.namespace)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Clear(ctx, s.namespace)
}

// GetJSON decodes the value stored under key into dst.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("kv: decode %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s/%s: %w", s.namespace, key, err)
	}
	return s.Set(ctx, key, raw)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("kv: key is required")
	}
	return nil
}
