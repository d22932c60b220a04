package kv

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"

	"studio/internal/infra"
)

// Open builds the backend selected by cfg.StoreDriver and applies its schema.
// The returned close function releases the underlying connections.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (Backend, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("kv: config is required")
	}
	logger = infra.LoggerOrNop(logger)

	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		return NewMemoryBackend(), func() {}, nil

	case infra.StoreDriverSQLite, "":
		db, err := infra.OpenSQLite(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := MigrateSQLite(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info().Str("driver", "sqlite").Msg("kv store ready")
		return NewSQLiteBackend(db), func() { _ = db.Close() }, nil

	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		err = MigratePostgres(ctx, sqlDB, logger)
		_ = sqlDB.Close()
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Str("driver", "postgres").Msg("kv store ready")
		return NewPostgresBackend(infra.NewSQLRunner(pool, logger, 0)), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("kv: unsupported store driver %q", cfg.StoreDriver)
	}
}
