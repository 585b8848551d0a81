// Package sync ingests a user's recent Spotify plays into the track catalog
// and listening history.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/metrics"
	"github.com/justestif/go-spotify-recommender/internal/spotify"
)

const (
	// DefaultLimit is how many recent plays are requested per run.
	DefaultLimit = spotify.MaxRecentlyPlayed

	// HistoryViewLimit caps the entries returned by ListHistory.
	HistoryViewLimit = 100
)

// ClientSource hands out authenticated API clients. It returns
// auth.ErrNotAuthenticated for users without a stored token.
type ClientSource interface {
	ClientFor(ctx context.Context, userID uuid.UUID) (*spotify.Client, error)
}

// TrackStore is the track catalog.
type TrackStore interface {
	GetOrCreate(ctx context.Context, track *db.Track) (bool, error)
}

// HistoryStore is the listening history log.
type HistoryStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, trackID string, playedAt time.Time) (bool, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]db.HistoryEntry, error)
}

// Service handles syncing recent plays from Spotify to the database.
type Service struct {
	clients ClientSource
	tracks  TrackStore
	history HistoryStore
	limit   int
}

// Option configures a Service.
type Option func(*Service)

// WithLimit sets how many recent plays are requested, capped at the API maximum.
func WithLimit(n int) Option {
	return func(s *Service) {
		s.limit = min(n, spotify.MaxRecentlyPlayed)
	}
}

// New creates a new sync service.
func New(clients ClientSource, tracks TrackStore, history HistoryStore, opts ...Option) *Service {
	s := &Service{
		clients: clients,
		tracks:  tracks,
		history: history,
		limit:   DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result contains the counts of newly created rows.
type Result struct {
	TracksCreated  int
	HistoryCreated int
	// Skipped counts plays without a track id, such as local files.
	Skipped int
}

// FetchRecentPlays pulls the user's recently played tracks and records any
// track or play not seen before. Existing tracks keep their stored metadata.
// A failure midway leaves the rows written so far in place.
func (s *Service) FetchRecentPlays(ctx context.Context, userID uuid.UUID) (result *Result, err error) {
	defer func() {
		metrics.RecordPipelineRun(metrics.PipelineIngest, err)
	}()

	client, err := s.clients.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	plays, err := client.RecentlyPlayed(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	result = &Result{}
	for _, play := range plays {
		if play.Track.ID == "" {
			result.Skipped++
			continue
		}
		track := CatalogTrack(play.Track)
		created, err := s.tracks.GetOrCreate(ctx, track)
		if err != nil {
			return nil, fmt.Errorf("storing track %s: %w", track.ID, err)
		}
		if created {
			result.TracksCreated++
		}

		created, err = s.history.GetOrCreate(ctx, userID, track.ID, play.PlayedAt)
		if err != nil {
			return nil, fmt.Errorf("storing play of %s: %w", track.ID, err)
		}
		if created {
			result.HistoryCreated++
		}
	}

	metrics.RecordIngest(result.TracksCreated, result.HistoryCreated)
	logging.Info().
		Str("user_id", userID.String()).
		Int("plays", len(plays)).
		Int("tracks_created", result.TracksCreated).
		Int("history_created", result.HistoryCreated).
		Int("skipped", result.Skipped).
		Msg("Recent plays ingested")

	return result, nil
}

// ListHistory returns the user's most recent plays, newest first.
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID) ([]db.HistoryEntry, error) {
	entries, err := s.history.ListRecent(ctx, userID, HistoryViewLimit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// CatalogTrack converts API track metadata to a catalog row.
func CatalogTrack(t spotify.Track) *db.Track {
	return &db.Track{
		ID:          t.ID,
		Name:        t.Name,
		Artist:      t.Artist,
		Album:       t.Album,
		CoverURL:    t.CoverURL,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURL,
		DurationMs:  t.DurationMs,
	}
}
