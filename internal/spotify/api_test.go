package spotify_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	zspotify "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-recommender/internal/spotify"
	"github.com/justestif/go-spotify-recommender/internal/spotify/spotifytest"
)

func newClient(t *testing.T, srv *spotifytest.Server) *spotify.Client {
	t.Helper()
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "token",
		TokenType:   "Bearer",
	}))
	return spotify.New(zspotify.New(httpClient, zspotify.WithBaseURL(srv.APIURL())))
}

func TestCurrentProfile(t *testing.T) {
	srv := spotifytest.NewServer(t)
	srv.SetProfile(spotify.Profile{
		ID:          "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Country:     "SE",
		ImageURL:    "https://img/alice",
	})

	got, err := newClient(t, srv).CurrentProfile(context.Background())
	if err != nil {
		t.Fatalf("CurrentProfile() error = %v", err)
	}

	want := spotify.Profile{
		ID:          "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Country:     "SE",
		ImageURL:    "https://img/alice",
	}
	if *got != want {
		t.Errorf("CurrentProfile() = %+v, want %+v", *got, want)
	}
	if auth := srv.LastAuthorization(); auth != "Bearer token" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer token")
	}
}

func TestRecentlyPlayed(t *testing.T) {
	srv := spotifytest.NewServer(t)
	playedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv.SetRecentlyPlayed(
		spotify.Play{
			Track:    spotify.Track{ID: "t1", Name: "One", Artist: "A, B", Album: "Alb", CoverURL: "https://c/1", DurationMs: 1000},
			PlayedAt: playedAt,
		},
		spotify.Play{
			Track:    spotify.Track{ID: "t2", Name: "Two", Artist: "C"},
			PlayedAt: playedAt.Add(-time.Minute),
		},
	)

	plays, err := newClient(t, srv).RecentlyPlayed(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}

	if len(plays) != 2 {
		t.Fatalf("got %d plays, want 2", len(plays))
	}
	if plays[0].Track.Artist != "A, B" {
		t.Errorf("Artist = %q, want %q", plays[0].Track.Artist, "A, B")
	}
	if plays[0].Track.CoverURL != "https://c/1" {
		t.Errorf("CoverURL = %q, want %q", plays[0].Track.CoverURL, "https://c/1")
	}
	if plays[1].Track.PreviewURL != "" {
		t.Errorf("PreviewURL = %q, want empty for null preview", plays[1].Track.PreviewURL)
	}
	if !plays[0].PlayedAt.Equal(playedAt) {
		t.Errorf("PlayedAt = %v, want %v", plays[0].PlayedAt, playedAt)
	}
}

func TestAudioFeaturesSkipsMissing(t *testing.T) {
	srv := spotifytest.NewServer(t)
	srv.SetFeatures(spotify.Features{TrackID: "t1", Danceability: 0.5, Energy: 0.5, Valence: 0.5, Tempo: 100})

	features, err := newClient(t, srv).AudioFeatures(context.Background(), []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("AudioFeatures() error = %v", err)
	}

	if len(features) != 1 || features[0].TrackID != "t1" {
		t.Errorf("AudioFeatures() = %+v, want only t1", features)
	}
}

func TestRecommendationsSendsTargets(t *testing.T) {
	srv := spotifytest.NewServer(t)
	srv.SetRecommendations(spotify.Track{ID: "r1", Name: "Rec"})

	tracks, err := newClient(t, srv).Recommendations(context.Background(),
		[]string{"s1", "s2"},
		spotify.Targets{Danceability: 0.5, Energy: 0.25, Valence: 0.75, Tempo: 110},
		20,
	)
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "r1" {
		t.Errorf("Recommendations() = %+v, want [r1]", tracks)
	}

	q := srv.LastRecommendQuery()
	if got := q.Get("seed_tracks"); got != "s1,s2" {
		t.Errorf("seed_tracks = %q, want %q", got, "s1,s2")
	}
	if got := q.Get("limit"); got != "20" {
		t.Errorf("limit = %q, want %q", got, "20")
	}
	for _, key := range []string{"target_danceability", "target_energy", "target_valence", "target_tempo"} {
		if q.Get(key) == "" {
			t.Errorf("%s missing from query", key)
		}
	}
}

func TestUpstreamErrorIsWrapped(t *testing.T) {
	srv := spotifytest.NewServer(t)
	srv.Fail("/v1/me/top/tracks", http.StatusBadGateway)

	_, err := newClient(t, srv).TopTracks(context.Background(), 20)
	if err == nil {
		t.Fatal("TopTracks() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "fetching top tracks") {
		t.Errorf("error = %q, want it to name the operation", err)
	}
}
