package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is the subset of *sql.DB and *sql.Tx the SQLite backend needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteBackend stores entries in the kv_entries table of a local database.
type SQLiteBackend struct {
	db  DBTX
	now func() time.Time
}

func NewSQLiteBackend(db DBTX) *SQLiteBackend {
	return &SQLiteBackend{db: db, now: time.Now}
}

func (b *SQLiteBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, namespace, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value, b.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("kv: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (b *SQLiteBackend) Remove(ctx context.Context, namespace, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("kv: remove %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM kv_entries WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, fmt.Errorf("kv: list %s: %w", namespace, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			updated int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &updated); err != nil {
			return nil, fmt.Errorf("kv: scan %s: %w", namespace, err)
		}
		e.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv: iterate %s: %w", namespace, err)
	}
	return out, nil
}

func (b *SQLiteBackend) Clear(ctx context.Context, namespace string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("kv: clear %s: %w", namespace, err)
	}
	return nil
}

var _ Backend = (*SQLiteBackend)(nil)
