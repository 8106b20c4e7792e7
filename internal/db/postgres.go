// Package db opens the Postgres connection pool and embeds SQL migrations.
package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open opens a Postgres connection pool for the given DSN and verifies it
// with a ping. Caller must call Close on the returned pool when done.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
