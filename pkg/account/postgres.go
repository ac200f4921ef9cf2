package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumeassist/usagegate/pkg/models"
)

const createUsersPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore implements Store on a Postgres users table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the users table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createUsersPostgres); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Init(ctx context.Context, id, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`,
		id, email)
	if err != nil {
		return fmt.Errorf("init account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Account, error) {
	a := models.Account{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT email, created_at FROM users WHERE id = $1`, id,
	).Scan(&a.Email, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}
