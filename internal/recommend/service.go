// Package recommend generates and stores track recommendations from a user's
// top tracks and their average audio features.
package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/muesli/clusters"

	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/metrics"
	"github.com/justestif/go-spotify-recommender/internal/spotify"
	"github.com/justestif/go-spotify-recommender/internal/sync"
)

const (
	TopTracksLimit      = 20
	SeedCount           = 5
	RecommendationLimit = 20

	// Score and Reason are placeholders stored with every recommendation.
	Score  = 0.8
	Reason = "Based on your listening history and top tracks"
)

// ErrNoAudioFeatures is returned when none of the seed tracks has audio
// features to average.
var ErrNoAudioFeatures = errors.New("no audio features available for seed tracks")

// ClientSource hands out authenticated API clients.
type ClientSource interface {
	ClientFor(ctx context.Context, userID uuid.UUID) (*spotify.Client, error)
}

// TrackStore is the track catalog.
type TrackStore interface {
	GetOrCreate(ctx context.Context, track *db.Track) (bool, error)
}

// RecommendationStore holds each user's current recommendation set.
type RecommendationStore interface {
	Create(ctx context.Context, rec *db.Recommendation) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]db.Recommendation, error)
}

// Service handles recommendation generation and persistence.
type Service struct {
	clients ClientSource
	tracks  TrackStore
	recs    RecommendationStore
}

// New creates a new recommendation service.
func New(clients ClientSource, tracks TrackStore, recs RecommendationStore) *Service {
	return &Service{clients: clients, tracks: tracks, recs: recs}
}

// Result contains the outcome of a generation run.
type Result struct {
	Seeds           []string
	Targets         spotify.Targets
	Stored          int // Recommendations written
	TracksCreated   int // Recommended tracks new to the catalog
	PreviousCleared int64
}

// Generate replaces the user's recommendations with a fresh set seeded by
// their top tracks. The old set is deleted before the new one is written
// and nothing is rolled back on failure.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) (result *Result, err error) {
	defer func() {
		metrics.RecordPipelineRun(metrics.PipelineRecommend, err)
	}()

	client, err := s.clients.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	top, err := client.TopTracks(ctx, TopTracksLimit)
	if err != nil {
		return nil, err
	}

	seeds := make([]string, 0, SeedCount)
	for _, t := range top[:min(SeedCount, len(top))] {
		seeds = append(seeds, t.ID)
	}

	features, err := client.AudioFeatures(ctx, seeds)
	if err != nil {
		return nil, err
	}

	targets, err := averageFeatures(features)
	if err != nil {
		return nil, err
	}

	tracks, err := client.Recommendations(ctx, seeds, targets, RecommendationLimit)
	if err != nil {
		return nil, err
	}

	cleared, err := s.recs.DeleteForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("clearing recommendations: %w", err)
	}

	result = &Result{Seeds: seeds, Targets: targets, PreviousCleared: cleared}
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		track := sync.CatalogTrack(t)
		created, err := s.tracks.GetOrCreate(ctx, track)
		if err != nil {
			return nil, fmt.Errorf("storing track %s: %w", track.ID, err)
		}
		if created {
			result.TracksCreated++
		}

		if err := s.recs.Create(ctx, &db.Recommendation{
			UserID:  userID,
			TrackID: track.ID,
			Score:   Score,
			Reason:  Reason,
		}); err != nil {
			return nil, fmt.Errorf("storing recommendation %s: %w", track.ID, err)
		}
		result.Stored++
	}

	metrics.RecordRecommendations(result.TracksCreated, result.Stored)
	logging.Info().
		Str("user_id", userID.String()).
		Strs("seeds", seeds).
		Int("stored", result.Stored).
		Int64("cleared", cleared).
		Msg("Recommendations generated")

	return result, nil
}

// ListRecommendations returns the user's current set, highest score first
// and newest first among equal scores.
func (s *Service) ListRecommendations(ctx context.Context, userID uuid.UUID) ([]db.Recommendation, error) {
	recs, err := s.recs.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	return recs, nil
}

// averageFeatures returns the mean of each tuning attribute over the
// tracks that have features.
func averageFeatures(features []spotify.Features) (spotify.Targets, error) {
	if len(features) == 0 {
		return spotify.Targets{}, ErrNoAudioFeatures
	}

	obs := make(clusters.Observations, len(features))
	for i, f := range features {
		obs[i] = clusters.Coordinates{f.Danceability, f.Energy, f.Valence, f.Tempo}
	}

	center, err := obs.Center()
	if err != nil {
		return spotify.Targets{}, fmt.Errorf("%w: %v", ErrNoAudioFeatures, err)
	}

	return spotify.Targets{
		Danceability: center[0],
		Energy:       center[1],
		Valence:      center[2],
		Tempo:        center[3],
	}, nil
}
