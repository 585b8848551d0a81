package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository handles Spotify token database operations.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or overwrites the token for token.UserID.
func (r *TokenRepository) Upsert(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO spotify_tokens (user_id, access_token, refresh_token, expires_at, token_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			token_type = EXCLUDED.token_type,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		token.UserID,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresAt,
		token.TokenType,
	).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// Get retrieves the token for a user.
func (r *TokenRepository) Get(ctx context.Context, userID uuid.UUID) (*Token, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, token_type, created_at, updated_at
		FROM spotify_tokens
		WHERE user_id = $1
	`
	var token Token
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&token.UserID,
		&token.AccessToken,
		&token.RefreshToken,
		&token.ExpiresAt,
		&token.TokenType,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return &token, nil
}
