package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is what stores need to run tagged queries.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrSQLMarker rejects a query that does not open with a "--sql <uuid>" line.
var ErrSQLMarker = errors.New("sql marker missing or invalid")

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// DefaultSlowQuery is the threshold above which a statement is logged at warn.
const DefaultSlowQuery = 500 * time.Millisecond

// SQLRunner strips the marker from each query, runs the body on the
// underlying pool (a *pgxpool.Pool in production) and logs by marker.
type SQLRunner struct {
	pool      SQLExecutor
	logger    *Logger
	slowQuery time.Duration
	now       func() time.Time
}

// NewSQLRunner wraps pool. A zero slow threshold uses DefaultSlowQuery.
func NewSQLRunner(pool SQLExecutor, logger *Logger, slow time.Duration) *SQLRunner {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &SQLRunner{pool: pool, logger: LoggerOrNop(logger), slowQuery: slow, now: time.Now}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := r.now()
	tag, err := r.pool.Exec(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("sql: exec failed")
		return tag, err
	}
	r.observe(marker, "exec", start).Int64("rows", tag.RowsAffected()).Msg("sql: exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &scanRow{row: r.pool.QueryRow(ctx, body, args...), runner: r, marker: marker, start: r.now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	start := r.now()
	rows, err := r.pool.Query(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("sql: query failed")
		return nil, err
	}
	return &closingRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// observe starts a debug event, promoted to warn when the statement was slow.
func (r *SQLRunner) observe(marker, op string, start time.Time) *zerolog.Event {
	took := r.now().Sub(start)
	event := r.logger.Debug()
	if took >= r.slowQuery {
		event = r.logger.Warn().Bool("slow", true)
	}
	return event.Str("sql", marker).Str("op", op).Dur("took", took)
}

type scanRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (s *scanRow) Scan(dest ...any) error {
	err := s.row.Scan(dest...)
	switch {
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		s.runner.observe(s.marker, "query_row", s.start).Bool("found", err == nil).Msg("sql: query_row")
	default:
		s.runner.logger.Error().Err(err).Str("sql", s.marker).Msg("sql: scan failed")
	}
	return err
}

type closingRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
}

func (c *closingRows) Close() {
	c.Rows.Close()
	if err := c.Rows.Err(); err != nil {
		c.runner.logger.Error().Err(err).Str("sql", c.marker).Msg("sql: rows failed")
		return
	}
	c.runner.observe(c.marker, "query", c.start).Msg("sql: query")
}

type errorRow struct{ err error }

func (e errorRow) Scan(...any) error { return e.err }

// ExtractMarker splits a tagged query into its marker and SQL body.
func ExtractMarker(query string) (marker, body string, err error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrSQLMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(rest), nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
