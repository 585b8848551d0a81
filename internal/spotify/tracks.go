package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// MaxRecentlyPlayed is the largest page the recently-played endpoint serves.
const MaxRecentlyPlayed = 50

// RecentlyPlayed returns up to limit of the user's most recent plays,
// newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]Play, error) {
	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{
		Limit: spotify.Numeric(min(limit, MaxRecentlyPlayed)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recently played: %w", err)
	}

	plays := make([]Play, len(items))
	for i, item := range items {
		plays[i] = Play{
			Track:    convertTrack(item.Track),
			PlayedAt: item.PlayedAt,
		}
	}
	return plays, nil
}

// TopTracks returns the user's top tracks over the medium-term range.
func (c *Client) TopTracks(ctx context.Context, limit int) ([]Track, error) {
	page, err := c.api.CurrentUsersTopTracks(ctx,
		spotify.Limit(limit),
		spotify.Timerange(spotify.MediumTermRange),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}

	tracks := make([]Track, len(page.Tracks))
	for i, full := range page.Tracks {
		tracks[i] = convertFullTrack(full)
	}
	return tracks, nil
}

// convertTrack converts a Spotify SimpleTrack to a Track.
func convertTrack(st spotify.SimpleTrack) Track {
	artists := make([]string, len(st.Artists))
	for i, a := range st.Artists {
		artists[i] = a.Name
	}

	track := Track{
		ID:          st.ID.String(),
		Name:        st.Name,
		Artist:      strings.Join(artists, ", "),
		PreviewURL:  st.PreviewURL,
		ExternalURL: st.ExternalURLs["spotify"],
		DurationMs:  int(st.Duration),
	}
	applyAlbum(&track, st.Album)
	return track
}

// convertFullTrack converts a FullTrack, whose album is decoded into the
// outer struct rather than the embedded SimpleTrack.
func convertFullTrack(ft spotify.FullTrack) Track {
	track := convertTrack(ft.SimpleTrack)
	applyAlbum(&track, ft.Album)
	return track
}

func applyAlbum(t *Track, album spotify.SimpleAlbum) {
	t.Album = album.Name
	if len(album.Images) > 0 {
		t.CoverURL = album.Images[0].URL
	}
}
