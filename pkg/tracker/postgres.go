package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumeassist/usagegate/pkg/models"
)

// PostgresTracker implements Tracker on a Postgres api_usage table.
type PostgresTracker struct {
	pool *pgxpool.Pool
}

const createTablePostgres = `
CREATE TABLE IF NOT EXISTS api_usage (
	user_id TEXT NOT NULL,
	date DATE NOT NULL,
	request_count BIGINT NOT NULL DEFAULT 0 CHECK (request_count >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, date)
)`

const consumePostgres = `
INSERT INTO api_usage (user_id, date, request_count, updated_at)
VALUES ($1, $2::date, $3, $4)
ON CONFLICT (user_id, date) DO UPDATE
	SET request_count = api_usage.request_count + EXCLUDED.request_count,
	    updated_at = EXCLUDED.updated_at
	WHERE api_usage.request_count + EXCLUDED.request_count <= $5
RETURNING request_count`

// NewPostgres connects to dsn and ensures the api_usage table exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresTracker, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres tracker: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTablePostgres); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres tracker: %w", err)
	}
	return &PostgresTracker{pool: pool}, nil
}

// Usage returns the request count for userID on date.
func (t *PostgresTracker) Usage(ctx context.Context, userID, date string) (int64, error) {
	var count int64
	err := t.pool.QueryRow(ctx,
		`SELECT request_count FROM api_usage WHERE user_id = $1 AND date = $2::date`,
		userID, date,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return count, nil
}

// Consume adds cost to the counter in a single conditional upsert.
func (t *PostgresTracker) Consume(ctx context.Context, userID, date string, cost, limit int64) (int64, bool, error) {
	if cost > limit {
		return 0, false, nil
	}
	var count int64
	err := t.pool.QueryRow(ctx, consumePostgres,
		userID, date, cost, time.Now().UTC(), limit,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("consume usage: %w", err)
	}
	return count, true, nil
}

// History returns usage records for userID since sinceDate.
func (t *PostgresTracker) History(ctx context.Context, userID, sinceDate string) ([]models.UsageRecord, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT user_id, to_char(date, 'YYYY-MM-DD'), request_count, updated_at
		 FROM api_usage WHERE user_id = $1 AND date >= $2::date ORDER BY date DESC`,
		userID, sinceDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.UserID, &r.Date, &r.RequestCount, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Pool exposes the connection pool so other tables can share it.
func (t *PostgresTracker) Pool() *pgxpool.Pool {
	return t.pool
}

// Close releases the pool.
func (t *PostgresTracker) Close() error {
	t.pool.Close()
	return nil
}
