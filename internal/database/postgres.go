package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// NewPool connects to Postgres, retrying the ping for up to 30 seconds while
// the database comes up.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database pool init failed: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	deadline := time.Now().Add(30 * time.Second)
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if time.Now().After(deadline) {
			pool.Close()
			return nil, fmt.Errorf("database ping failed after retries: %w", err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("database not ready, retrying")

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("database ping canceled: %w", ctx.Err())
		case <-time.After(1500 * time.Millisecond):
		}
	}
}

// OpenSQL exposes the pool through database/sql for stores written against it.
func OpenSQL(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}
