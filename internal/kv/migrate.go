package kv

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"studio/internal/infra"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// MigrateSQLite applies the embedded SQLite schema.
func MigrateSQLite(ctx context.Context, db *sql.DB, logger *infra.Logger) error {
	return migrate(ctx, db, "sqlite3", "migrations/sqlite", logger)
}

// MigratePostgres applies the embedded Postgres schema.
func MigratePostgres(ctx context.Context, db *sql.DB, logger *infra.Logger) error {
	return migrate(ctx, db, "pgx", "migrations/postgres", logger)
}

func migrate(ctx context.Context, db *sql.DB, dialect, dir string, logger *infra.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: infra.LoggerOrNop(logger)})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("kv: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("kv: migrate %s: %w", dialect, err)
	}
	return nil
}

type gooseLogger struct {
	logger *infra.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Debug().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}
