package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/resumeassist/usagegate/pkg/models"
)

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS api_usage (
	user_id TEXT NOT NULL,
	date TEXT NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0 CHECK (request_count >= 0),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, date)
);
`

const consumeSQLite = `
INSERT INTO api_usage (user_id, date, request_count, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, date) DO UPDATE
	SET request_count = api_usage.request_count + excluded.request_count,
	    updated_at = excluded.updated_at
	WHERE api_usage.request_count + excluded.request_count <= ?
RETURNING request_count`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// OpenSQLite opens dbPath in WAL mode with a busy timeout so concurrent
// writers from other processes wait instead of failing.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dbPath+sep+"_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection avoids in-process lock contention.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Usage returns the request count for userID on date.
func (t *SQLiteTracker) Usage(ctx context.Context, userID, date string) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx,
		`SELECT request_count FROM api_usage WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return count, nil
}

// Consume adds cost to the counter in a single conditional upsert.
func (t *SQLiteTracker) Consume(ctx context.Context, userID, date string, cost, limit int64) (int64, bool, error) {
	if cost > limit {
		return 0, false, nil
	}
	var count int64
	err := t.db.QueryRowContext(ctx, consumeSQLite,
		userID, date, cost, time.Now().UTC(), limit,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("consume usage: %w", err)
	}
	return count, true, nil
}

// History returns usage records for userID since sinceDate.
func (t *SQLiteTracker) History(ctx context.Context, userID, sinceDate string) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT user_id, date, request_count, updated_at
		 FROM api_usage WHERE user_id = ? AND date >= ? ORDER BY date DESC`,
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

// DB exposes the underlying handle so other tables can share the file.
func (t *SQLiteTracker) DB() *sql.DB {
	return t.db
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
