package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// GetOrCreate inserts the track if no track with the same ID exists.
// Existing rows are never updated; on return track holds the stored values.
// The boolean result reports whether a new row was inserted.
func (r *TrackRepository) GetOrCreate(ctx context.Context, track *Track) (bool, error) {
	query := `
		INSERT INTO tracks (id, name, artist, album, cover_url, preview_url, external_url, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		track.ID,
		track.Name,
		track.Artist,
		track.Album,
		track.CoverURL,
		track.PreviewURL,
		track.ExternalURL,
		track.DurationMs,
	).Scan(&track.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("inserting track: %w", err)
	}

	existing, err := r.Get(ctx, track.ID)
	if err != nil {
		return false, err
	}
	*track = *existing
	return false, nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*Track, error) {
	query := `
		SELECT id, name, artist, album, cover_url, preview_url, external_url, duration_ms, created_at
		FROM tracks
		WHERE id = $1
	`
	var track Track
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&track.ID,
		&track.Name,
		&track.Artist,
		&track.Album,
		&track.CoverURL,
		&track.PreviewURL,
		&track.ExternalURL,
		&track.DurationMs,
		&track.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}
