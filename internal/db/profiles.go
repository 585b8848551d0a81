package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository handles Spotify profile database operations.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or overwrites the profile for profile.UserID.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO spotify_profiles (user_id, spotify_id, display_name, email, country, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			spotify_id = EXCLUDED.spotify_id,
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		profile.UserID,
		profile.SpotifyID,
		profile.DisplayName,
		profile.Email,
		profile.Country,
		profile.ImageURL,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// Get retrieves the profile for a user.
func (r *ProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query := `
		SELECT user_id, spotify_id, display_name, email, country, image_url, created_at, updated_at
		FROM spotify_profiles
		WHERE user_id = $1
	`
	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.SpotifyID,
		&p.DisplayName,
		&p.Email,
		&p.Country,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &p, nil
}
