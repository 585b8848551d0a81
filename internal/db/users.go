package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles user database operations.
type UserRepository struct {
	pool *pgxpool.Pool
}

// GetOrCreate returns the user with the given username, creating it if needed.
// The boolean result reports whether a new row was inserted.
func (r *UserRepository) GetOrCreate(ctx context.Context, username string) (*User, bool, error) {
	query := `
		INSERT INTO users (id, username, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO NOTHING
		RETURNING id, username, created_at
	`
	var user User
	err := r.pool.QueryRow(ctx, query, uuid.New(), username).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)
	if err == nil {
		return &user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting user: %w", err)
	}

	existing, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, username, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, created_at
		FROM users
		WHERE username = $1
	`
	return r.scanOne(ctx, query, username)
}

// Delete removes a user. Tokens, profiles, sessions, history and
// recommendations owned by the user are removed by cascade.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}
