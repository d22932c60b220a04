package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/infra"
)

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := infra.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, MigrateSQLite(context.Background(), db, nil))
	return db
}

func TestSQLiteBackendSetGetUpsert(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(setupSQLite(t))

	require.NoError(t, b.Set(ctx, NamespaceJobs, "abc", []byte("old")))
	require.NoError(t, b.Set(ctx, NamespaceJobs, "abc", []byte("new")))

	v, err := b.Get(ctx, NamespaceJobs, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)

	_, err = b.Get(ctx, NamespaceArtifacts, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackendListRemoveClear(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(setupSQLite(t))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	require.NoError(t, b.Set(ctx, "ns", "b", []byte{0xBB}))
	require.NoError(t, b.Set(ctx, "ns", "a", []byte{0xAA}))
	require.NoError(t, b.Set(ctx, "other", "z", []byte{0x01}))

	entries, err := b.List(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, []byte{0xAA}, entries[0].Value)
	assert.True(t, entries[0].UpdatedAt.Equal(fixed))

	require.NoError(t, b.Remove(ctx, "ns", "a"))
	require.NoError(t, b.Remove(ctx, "ns", "a"))
	entries, err = b.List(ctx, "ns")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, b.Clear(ctx, "ns"))
	entries, err = b.List(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, entries)

	v, err := b.Get(ctx, "other", "z")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, v)
}

func TestSQLiteMigrationIsIdempotent(t *testing.T) {
	db := setupSQLite(t)
	require.NoError(t, MigrateSQLite(context.Background(), db, nil))
}

func TestSQLiteBackendGetDBErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT value FROM kv_entries").
		WithArgs("jobs", "abc").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewSQLiteBackend(db).Get(context.Background(), "jobs", "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "kv: get jobs/abc")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteBackendSetDBErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO kv_entries").
		WillReturnError(errors.New("database is locked"))

	err = NewSQLiteBackend(db).Set(context.Background(), "jobs", "abc", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteBackendListScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"key", "value", "updated_at"}).
		AddRow("a", []byte("x"), "not-a-number")
	mock.ExpectQuery("SELECT key, value, updated_at FROM kv_entries").
		WithArgs("ns").
		WillReturnRows(rows)

	_, err = NewSQLiteBackend(db).List(context.Background(), "ns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv: scan ns")
	require.NoError(t, mock.ExpectationsWereMet())
}
