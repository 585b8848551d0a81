// Package auth manages the Spotify OAuth2 authorization-code flow and the
// per-user credentials it produces.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	zspotify "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/metrics"
	"github.com/justestif/go-spotify-recommender/internal/spotify"
)

var (
	// ErrNotAuthenticated is returned when a user has no stored Spotify token.
	ErrNotAuthenticated = errors.New("not authenticated with Spotify")

	// ErrAuthDenied is returned when Spotify redirects back with an error.
	ErrAuthDenied = errors.New("spotify authorization failed")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("no authorization code received")
)

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Endpoint defaults to Spotify's accounts service.
	Endpoint oauth2.Endpoint

	// APIBaseURL defaults to the public Web API.
	APIBaseURL string
}

// UserStore resolves local users by Spotify id.
type UserStore interface {
	GetOrCreate(ctx context.Context, username string) (*db.User, bool, error)
}

// TokenStore persists one token per user.
type TokenStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Token, error)
	Upsert(ctx context.Context, token *db.Token) error
}

// ProfileStore persists one profile per user.
type ProfileStore interface {
	Upsert(ctx context.Context, profile *db.Profile) error
}

// Manager builds authorization URLs, exchanges codes and hands out API
// clients with fresh tokens.
type Manager struct {
	oauth      *oauth2.Config
	apiBaseURL string
	users      UserStore
	tokens     TokenStore
	profiles   ProfileStore
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager.
func New(cfg Config, users UserStore, tokens TokenStore, profiles ProfileStore, opts ...Option) *Manager {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		}
	}

	m := &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		apiBaseURL: cfg.APIBaseURL,
		users:      users,
		tokens:     tokens,
		profiles:   profiles,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AuthURL returns the consent URL. The dialog is always shown so users can
// switch accounts.
func (m *Manager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state, spotifyauth.ShowDialog)
}

// CheckCallback validates the error and code query parameters of the
// OAuth redirect.
func CheckCallback(errParam, code string) error {
	if errParam != "" {
		return fmt.Errorf("%w: %s", ErrAuthDenied, errParam)
	}
	if code == "" {
		return ErrMissingCode
	}
	return nil
}

// HandleCallback exchanges code for a token, loads the Spotify profile and
// stores user, token and profile. Authenticating the same Spotify account
// again returns the same local user.
func (m *Manager) HandleCallback(ctx context.Context, code string) (*db.User, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}

	profile, err := m.client(ctx, tok).CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}

	user, created, err := m.users.GetOrCreate(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	if err := m.tokens.Upsert(ctx, &db.Token{
		UserID:       user.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.TokenType,
	}); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}

	if err := m.profiles.Upsert(ctx, &db.Profile{
		UserID:      user.ID,
		SpotifyID:   profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Country:     profile.Country,
		ImageURL:    profile.ImageURL,
	}); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}

	logging.Info().
		Str("user_id", user.ID.String()).
		Str("spotify_id", profile.ID).
		Bool("new_user", created).
		Msg("Spotify account linked")

	return user, nil
}

// ClientFor returns an API client for the user, refreshing and persisting
// the token first if it has expired.
func (m *Manager) ClientFor(ctx context.Context, userID uuid.UUID) (*spotify.Client, error) {
	token, err := m.tokens.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	if token.Expired(m.now()) {
		if err := m.refresh(ctx, token); err != nil {
			return nil, err
		}
	}

	return m.client(ctx, &oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	}), nil
}

// refresh exchanges the refresh token and stores the result in token.
func (m *Manager) refresh(ctx context.Context, token *db.Token) error {
	fresh, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	metrics.RecordTokenRefresh(err)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}

	token.AccessToken = fresh.AccessToken
	token.ExpiresAt = fresh.Expiry
	if fresh.TokenType != "" {
		token.TokenType = fresh.TokenType
	}
	if fresh.RefreshToken != "" {
		token.RefreshToken = fresh.RefreshToken
	}

	if err := m.tokens.Upsert(ctx, token); err != nil {
		return fmt.Errorf("saving refreshed token: %w", err)
	}

	logging.Debug().Str("user_id", token.UserID.String()).Msg("Spotify token refreshed")
	return nil
}

// client wraps tok in a Spotify client. The token is used as-is; refresh
// happens only in ClientFor so the new token is always persisted.
func (m *Manager) client(ctx context.Context, tok *oauth2.Token) *spotify.Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))

	var opts []zspotify.ClientOption
	if m.apiBaseURL != "" {
		opts = append(opts, zspotify.WithBaseURL(m.apiBaseURL))
	}
	return spotify.New(zspotify.New(httpClient, opts...))
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
