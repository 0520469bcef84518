package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/redact"
)

const pingTimeout = 5 * time.Second

// openDatabase opens a pgx pool and a database/sql handle over the same
// pool. The stores use the handle; River uses the pool.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*pgxpool.Pool, *sql.DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database url: %s", redact.Error(err))
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established",
		"max_conns", poolCfg.MaxConns,
		"conn_max_lifetime", poolCfg.MaxConnLifetime)
	return pool, stdlib.OpenDBFromPool(pool), nil
}
