package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

const maxTracksPerRequest = 100

// AudioFeatures retrieves audio features for the given track IDs.
// Batches requests to max 100 tracks per request per Spotify API limits.
// Tracks without available audio features are omitted from the result.
func (c *Client) AudioFeatures(ctx context.Context, ids []string) ([]Features, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	spotifyIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		spotifyIDs[i] = spotify.ID(id)
	}

	var result []Features
	total := len(spotifyIDs)
	for i := 0; i < total; i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, total)
		batch := spotifyIDs[i:end]

		features, err := c.api.GetAudioFeatures(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("fetching audio features (batch %d-%d): %w", i+1, end, err)
		}

		for _, f := range features {
			if f == nil {
				continue // Track has no audio features
			}
			result = append(result, convertFeatures(f))
		}
	}

	return result, nil
}

func convertFeatures(f *spotify.AudioFeatures) Features {
	return Features{
		TrackID:      f.ID.String(),
		Danceability: float64(f.Danceability),
		Energy:       float64(f.Energy),
		Valence:      float64(f.Valence),
		Tempo:        float64(f.Tempo),
	}
}
