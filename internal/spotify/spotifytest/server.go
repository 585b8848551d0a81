// Package spotifytest runs a fake Spotify Web API and accounts service for
// tests.
package spotifytest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-recommender/internal/spotify"
)

// Server is an httptest server that answers the endpoints the application
// calls. All fields are guarded by an internal lock; use the setters.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	profile         spotify.Profile
	plays           []spotify.Play
	topTracks       []spotify.Track
	features        map[string]spotify.Features
	recommendations []spotify.Track
	failures        map[string]int
	rotateRefresh   bool
	expiresIn       int

	hits               map[string]int
	refreshes          int
	lastRecommendQuery url.Values
	lastAuthorization  string
}

// NewServer starts a fake server that is closed with the test.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		profile:   spotify.Profile{ID: "spotify-user", DisplayName: "Test User"},
		features:  make(map[string]spotify.Features),
		failures:  make(map[string]int),
		hits:      make(map[string]int),
		expiresIn: 3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", s.handleToken)
	mux.HandleFunc("GET /v1/me", s.handleMe)
	mux.HandleFunc("GET /v1/me/player/recently-played", s.handleRecentlyPlayed)
	mux.HandleFunc("GET /v1/me/top/tracks", s.handleTopTracks)
	mux.HandleFunc("GET /v1/audio-features", s.handleAudioFeatures)
	mux.HandleFunc("GET /v1/recommendations", s.handleRecommendations)

	s.Server = httptest.NewServer(s.instrument(mux))
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL to pass to spotify.WithBaseURL.
func (s *Server) APIURL() string {
	return s.URL + "/v1/"
}

// Endpoint is the OAuth2 endpoint of the fake accounts service.
func (s *Server) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   s.URL + "/authorize",
		TokenURL:  s.URL + "/api/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// SetProfile sets the /me response.
func (s *Server) SetProfile(p spotify.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// SetRecentlyPlayed sets the recently-played response.
func (s *Server) SetRecentlyPlayed(plays ...spotify.Play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = plays
}

// SetTopTracks sets the top-tracks response.
func (s *Server) SetTopTracks(tracks ...spotify.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topTracks = tracks
}

// SetFeatures registers audio features. Tracks without registered features
// are answered with null.
func (s *Server) SetFeatures(features ...spotify.Features) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range features {
		s.features[f.TrackID] = f
	}
}

// SetRecommendations sets the recommendations response.
func (s *Server) SetRecommendations(tracks ...spotify.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = tracks
}

// Fail makes every request to path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// RotateRefreshTokens makes refresh grants return a new refresh token.
func (s *Server) RotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = rotate
}

// SetExpiresIn sets expires_in for issued tokens, in seconds.
func (s *Server) SetExpiresIn(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresIn = seconds
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Refreshes returns how many refresh_token grants were served.
func (s *Server) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// LastRecommendQuery returns the query of the latest recommendations call.
func (s *Server) LastRecommendQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecommendQuery
}

// LastAuthorization returns the Authorization header of the latest API call.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthorization
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			s.lastAuthorization = r.Header.Get("Authorization")
		}
		status, fail := s.failures[r.URL.Path]
		s.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]any{
				"error": map[string]any{"status": status, "message": http.StatusText(status)},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]any{
		"token_type": "Bearer",
		"expires_in": s.expiresIn,
		"scope":      "user-read-recently-played user-top-read",
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		if code == "bad-code" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		resp["access_token"] = "access-" + code
		resp["refresh_token"] = "refresh-" + code
	case "refresh_token":
		s.refreshes++
		resp["access_token"] = fmt.Sprintf("refreshed-%d", s.refreshes)
		if s.rotateRefresh {
			resp["refresh_token"] = fmt.Sprintf("rotated-%d", s.refreshes)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	p := s.profile
	s.mu.Unlock()

	body := map[string]any{
		"id":           p.ID,
		"display_name": p.DisplayName,
		"email":        p.Email,
		"country":      p.Country,
		"images":       []any{},
	}
	if p.ImageURL != "" {
		body["images"] = []any{map[string]any{"url": p.ImageURL}}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRecentlyPlayed(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	plays := s.plays
	s.mu.Unlock()

	items := make([]any, len(plays))
	for i, p := range plays {
		items[i] = map[string]any{
			"track":     trackJSON(p.Track),
			"played_at": p.PlayedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleTopTracks(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	tracks := s.topTracks
	s.mu.Unlock()

	items := make([]any, len(tracks))
	for i, t := range tracks {
		items[i] = trackJSON(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(items),
		"limit":  len(items),
		"offset": 0,
	})
}

func (s *Server) handleAudioFeatures(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]any, len(ids))
	for i, id := range ids {
		f, ok := s.features[id]
		if !ok {
			out[i] = nil
			continue
		}
		out[i] = map[string]any{
			"id":           id,
			"danceability": f.Danceability,
			"energy":       f.Energy,
			"valence":      f.Valence,
			"tempo":        f.Tempo,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audio_features": out})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.lastRecommendQuery = r.URL.Query()
	tracks := s.recommendations
	s.mu.Unlock()

	items := make([]any, len(tracks))
	for i, t := range tracks {
		items[i] = trackJSON(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeds": []any{}, "tracks": items})
}

func trackJSON(t spotify.Track) map[string]any {
	artists := []any{}
	if t.Artist != "" {
		for _, name := range strings.Split(t.Artist, ", ") {
			artists = append(artists, map[string]any{"name": name})
		}
	}
	images := []any{}
	if t.CoverURL != "" {
		images = append(images, map[string]any{"url": t.CoverURL})
	}
	var preview any
	if t.PreviewURL != "" {
		preview = t.PreviewURL
	}
	return map[string]any{
		"id":            t.ID,
		"name":          t.Name,
		"artists":       artists,
		"album":         map[string]any{"name": t.Album, "images": images},
		"preview_url":   preview,
		"external_urls": map[string]any{"spotify": t.ExternalURL},
		"duration_ms":   t.DurationMs,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
