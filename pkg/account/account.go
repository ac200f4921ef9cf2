// Package account stores the user rows created on first sign-in.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/resumeassist/usagegate/pkg/models"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

// ErrNotFound is returned when no account exists for the id.
var ErrNotFound = errors.New("account not found")

// Store creates and reads accounts.
type Store interface {
	// Init creates the account or updates its email. created_at is set once.
	Init(ctx context.Context, id, email string) error
	// Get returns the account for id.
	Get(ctx context.Context, id string) (models.Account, error)
}

// JoinedAt returns when the account id was first created.
func JoinedAt(ctx context.Context, s Store, id string) (time.Time, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return a.CreatedAt, nil
}

// ForTracker returns a Store sharing the tracker's database. Trackers without
// a SQL database fall back to the SQLite file at dbPath.
func ForTracker(ctx context.Context, t tracker.Tracker, dbPath string) (Store, func() error, error) {
	noop := func() error { return nil }
	switch tt := t.(type) {
	case *tracker.SQLiteTracker:
		s, err := NewSQLite(ctx, tt.DB())
		return s, noop, err
	case *tracker.PostgresTracker:
		s, err := NewPostgres(ctx, tt.Pool())
		return s, noop, err
	default:
		db, err := tracker.OpenSQLite(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open account db: %w", err)
		}
		s, err := NewSQLite(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	}
}
