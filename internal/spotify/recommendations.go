package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// Targets are the target_* tuning attributes sent with a recommendation request.
type Targets struct {
	Danceability float64
	Energy       float64
	Valence      float64
	Tempo        float64
}

// Recommendations asks Spotify for up to limit tracks similar to the seed
// tracks and close to the targets.
func (c *Client) Recommendations(ctx context.Context, seedIDs []string, targets Targets, limit int) ([]Track, error) {
	seeds := spotify.Seeds{Tracks: make([]spotify.ID, len(seedIDs))}
	for i, id := range seedIDs {
		seeds.Tracks[i] = spotify.ID(id)
	}

	attrs := spotify.NewTrackAttributes().
		TargetDanceability(targets.Danceability).
		TargetEnergy(targets.Energy).
		TargetValence(targets.Valence).
		TargetTempo(targets.Tempo)

	recs, err := c.api.GetRecommendations(ctx, seeds, attrs, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	tracks := make([]Track, len(recs.Tracks))
	for i, st := range recs.Tracks {
		tracks[i] = convertTrack(st)
	}
	return tracks, nil
}
