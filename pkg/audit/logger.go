package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/resumeassist/usagegate/pkg/models"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

// timeLayout is fixed width so created_at compares correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Logger writes and queries ledger decisions in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention sweep.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := tracker.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS usage_decisions (
		id            TEXT PRIMARY KEY,
		request_id    TEXT,
		user_id       TEXT NOT NULL,
		date          TEXT NOT NULL,
		cost          INTEGER NOT NULL,
		allowed       INTEGER NOT NULL,
		outcome       TEXT NOT NULL,
		request_count INTEGER NOT NULL,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_decisions_user ON usage_decisions(user_id, date)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_decisions_created ON usage_decisions(created_at)`)
	return err
}

// Record implements ledger.Recorder. A nil Logger drops the decision.
func (l *Logger) Record(ctx context.Context, d models.Decision) error {
	if l == nil || l.db == nil {
		return nil
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO usage_decisions
		(id, request_id, user_id, date, cost, allowed, outcome, request_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequestID, d.UserID, d.Date, d.Cost, d.Allowed,
		string(d.Outcome), d.RequestCount, created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Query returns decisions matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.Decision, error) {
	q := `SELECT id, request_id, user_id, date, cost, allowed, outcome, request_count, created_at
		FROM usage_decisions WHERE 1=1`
	var args []any

	if opts.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, string(opts.Outcome))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		var d models.Decision
		var requestID sql.NullString
		var outcome, created string
		if err := rows.Scan(
			&d.ID, &requestID, &d.UserID, &d.Date, &d.Cost, &d.Allowed,
			&outcome, &d.RequestCount, &created,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		d.RequestID = requestID.String
		d.Outcome = models.Outcome(outcome)
		if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse audit time %q: %w", created, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats returns decision counts and consumed units grouped by outcome and
// ledger day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT outcome, date, count(*) AS cnt,
			COALESCE(SUM(CASE WHEN allowed THEN cost ELSE 0 END), 0) AS units
		 FROM usage_decisions GROUP BY outcome, date ORDER BY date DESC, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var outcome string
		if err := rows.Scan(&outcome, &s.Day, &s.Count, &s.Units); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Outcome = models.Outcome(outcome)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes decisions older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays).UTC().Format(timeLayout)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM usage_decisions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
