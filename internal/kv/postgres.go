package kv

import (
	"context"
	"fmt"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// PostgresBackend stores entries through the marker-tagged SQL executor.
type PostgresBackend struct {
	sql infra.SQLExecutor
}

func NewPostgresBackend(sql infra.SQLExecutor) *PostgresBackend {
	return &PostgresBackend{sql: sql}
}

func (b *PostgresBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	if err := b.sql.QueryRow(ctx, sqlinline.QKVGet, namespace, key).Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (b *PostgresBackend) Set(ctx context.Context, namespace, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := b.sql.Exec(ctx, sqlinline.QKVUpsert, namespace, key, value); err != nil {
		return fmt.Errorf("kv: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (b *PostgresBackend) Remove(ctx context.Context, namespace, key string) error {
	if _, err := b.sql.Exec(ctx, sqlinline.QKVDelete, namespace, key); err != nil {
		return fmt.Errorf("kv: remove %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := b.sql.Query(ctx, sqlinline.QKVList, namespace)
	if err != nil {
		return nil, fmt.Errorf("kv: list %s: %w", namespace, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("kv: scan %s: %w", namespace, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv: iterate %s: %w", namespace, err)
	}
	return out, nil
}

func (b *PostgresBackend) Clear(ctx context.Context, namespace string) error {
	if _, err := b.sql.Exec(ctx, sqlinline.QKVClear, namespace); err != nil {
		return fmt.Errorf("kv: clear %s: %w", namespace, err)
	}
	return nil
}

var _ Backend = (*PostgresBackend)(nil)
