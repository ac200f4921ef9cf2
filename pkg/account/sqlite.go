package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/resumeassist/usagegate/pkg/models"
)

const createUsersSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`

// SQLiteStore implements Store on a SQLite users table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite ensures the users table exists in db.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, createUsersSQLite); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Init(ctx context.Context, id, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email`,
		id, email, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("init account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Account, error) {
	a := models.Account{ID: id}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, created_at FROM users WHERE id = ?`, id,
	).Scan(&a.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.Account{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return a, nil
}
