package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/infra"
)

// fakeExecutor interprets the kv queries against an in-memory map so the
// backend can be exercised without a database.
type fakeExecutor struct {
	rows    map[string]map[string][]byte
	queries []string
	err     error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{rows: map[string]map[string][]byte{}}
}

func (f *fakeExecutor) record(query string) (string, error) {
	marker, body, err := infra.ExtractMarker(query)
	if err != nil {
		return "", err
	}
	f.queries = append(f.queries, marker)
	return strings.ToLower(body), nil
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	body, err := f.record(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	ns := args[0].(string)
	switch {
	case strings.HasPrefix(body, "insert into kv_entries"):
		if f.rows[ns] == nil {
			f.rows[ns] = map[string][]byte{}
		}
		f.rows[ns][args[1].(string)] = args[2].([]byte)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(body, "delete from kv_entries") && len(args) == 2:
		delete(f.rows[ns], args[1].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	case strings.HasPrefix(body, "delete from kv_entries"):
		delete(f.rows, ns)
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	if _, err := f.record(query); err != nil {
		return fakeRow{err: err}
	}
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	v, ok := f.rows[args[0].(string)][args[1].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: []any{v}}
}

func (f *fakeExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	if _, err := f.record(query); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	ns := f.rows[args[0].(string)]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &fakeRows{}
	for _, k := range keys {
		out.data = append(out.data, []any{k, ns[k], time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	}
	return out, nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.idx-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.idx-1])
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = values[i].(string)
		case *[]byte:
			*p = values[i].([]byte)
		case *time.Time:
			*p = values[i].(time.Time)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

func TestPostgresBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	b := NewPostgresBackend(exec)

	require.NoError(t, b.Set(ctx, NamespaceSources, "s2", []byte("two")))
	require.NoError(t, b.Set(ctx, NamespaceSources, "s1", []byte("one")))

	v, err := b.Get(ctx, NamespaceSources, "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	entries, err := b.List(ctx, NamespaceSources)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].Key)
	assert.False(t, entries[0].UpdatedAt.IsZero())

	require.NoError(t, b.Remove(ctx, NamespaceSources, "s1"))
	_, err = b.Get(ctx, NamespaceSources, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Clear(ctx, NamespaceSources))
	entries, err = b.List(ctx, NamespaceSources)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, marker := range exec.queries {
		assert.Len(t, marker, 36)
	}
}

func TestPostgresBackendWrapsErrors(t *testing.T) {
	exec := newFakeExecutor()
	exec.err = errors.New("connection reset")
	b := NewPostgresBackend(exec)

	_, err := b.Get(context.Background(), "jobs", "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")

	err = b.Set(context.Background(), "jobs", "abc", nil)
	assert.ErrorContains(t, err, "kv: set jobs/abc")
}
