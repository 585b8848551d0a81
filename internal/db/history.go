package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository handles listening history database operations.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// GetOrCreate records a play unless the same (user, track, played_at) already exists.
// The boolean result reports whether a new row was inserted.
func (r *HistoryRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, trackID string, playedAt time.Time) (bool, error) {
	query := `
		INSERT INTO listening_history (user_id, track_id, played_at, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, track_id, played_at) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, userID, trackID, playedAt)
	if err != nil {
		return false, fmt.Errorf("inserting history entry: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListRecent returns up to limit history entries for a user, newest first,
// with track metadata populated.
func (r *HistoryRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT h.id, h.user_id, h.track_id, h.played_at, h.created_at,
			t.id, t.name, t.artist, t.album, t.cover_url, t.preview_url, t.external_url, t.duration_ms, t.created_at
		FROM listening_history h
		JOIN tracks t ON t.id = h.track_id
		WHERE h.user_id = $1
		ORDER BY h.played_at DESC, h.id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.TrackID,
			&e.PlayedAt,
			&e.CreatedAt,
			&e.Track.ID,
			&e.Track.Name,
			&e.Track.Artist,
			&e.Track.Album,
			&e.Track.CoverURL,
			&e.Track.PreviewURL,
			&e.Track.ExternalURL,
			&e.Track.DurationMs,
			&e.Track.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
