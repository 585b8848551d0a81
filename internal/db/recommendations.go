package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecommendationRepository handles recommendation database operations.
type RecommendationRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a recommendation.
func (r *RecommendationRepository) Create(ctx context.Context, rec *Recommendation) error {
	query := `
		INSERT INTO recommendations (user_id, track_id, score, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		rec.UserID,
		rec.TrackID,
		rec.Score,
		rec.Reason,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting recommendation: %w", err)
	}
	return nil
}

// DeleteForUser removes all recommendations for a user and returns how many were removed.
func (r *RecommendationRepository) DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM recommendations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting recommendations: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListForUser returns all recommendations for a user, highest score first,
// newest first among equal scores, with track metadata populated.
func (r *RecommendationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Recommendation, error) {
	query := `
		SELECT r.id, r.user_id, r.track_id, r.score, r.reason, r.created_at,
			t.id, t.name, t.artist, t.album, t.cover_url, t.preview_url, t.external_url, t.duration_ms, t.created_at
		FROM recommendations r
		JOIN tracks t ON t.id = r.track_id
		WHERE r.user_id = $1
		ORDER BY r.score DESC, r.created_at DESC, r.id DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var rec Recommendation
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.TrackID,
			&rec.Score,
			&rec.Reason,
			&rec.CreatedAt,
			&rec.Track.ID,
			&rec.Track.Name,
			&rec.Track.Artist,
			&rec.Track.Album,
			&rec.Track.CoverURL,
			&rec.Track.PreviewURL,
			&rec.Track.ExternalURL,
			&rec.Track.DurationMs,
			&rec.Track.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
