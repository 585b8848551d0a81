package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/memstore"
	"github.com/justestif/go-spotify-recommender/internal/spotify"
	"github.com/justestif/go-spotify-recommender/internal/spotify/spotifytest"
)

type fixture struct {
	srv     *spotifytest.Server
	store   *memstore.Store
	manager *Manager
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		srv:   spotifytest.NewServer(t),
		store: memstore.New(),
		now:   time.Now(),
	}
	f.manager = New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8000/callback/",
		Scopes:       []string{"user-read-recently-played", "user-top-read"},
		Endpoint:     f.srv.Endpoint(),
		APIBaseURL:   f.srv.APIURL(),
	}, f.store.Users(), f.store.Tokens(), f.store.Profiles(), WithClock(func() time.Time { return f.now }))
	return f
}

func TestAuthURL(t *testing.T) {
	f := newFixture(t)

	u, err := url.Parse(f.manager.AuthURL("state123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:8000/callback/", q.Get("redirect_uri"))
	assert.Equal(t, "user-read-recently-played user-top-read", q.Get("scope"))
	assert.Equal(t, "state123", q.Get("state"))
	assert.Equal(t, "true", q.Get("show_dialog"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestCheckCallback(t *testing.T) {
	tests := []struct {
		name     string
		errParam string
		code     string
		wantErr  error
		wantText string
	}{
		{name: "denied", errParam: "access_denied", wantErr: ErrAuthDenied, wantText: "access_denied"},
		{name: "denied wins over code", errParam: "access_denied", code: "abc", wantErr: ErrAuthDenied},
		{name: "missing code", wantErr: ErrMissingCode},
		{name: "ok", code: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCallback(tt.errParam, tt.code)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

func TestHandleCallbackStoresUserTokenAndProfile(t *testing.T) {
	f := newFixture(t)
	f.srv.SetProfile(spotify.Profile{
		ID:          "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Country:     "SE",
		ImageURL:    "https://img/alice",
	})
	ctx := context.Background()

	user, err := f.manager.HandleCallback(ctx, "code1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	token, err := f.store.Tokens().Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-code1", token.AccessToken)
	assert.Equal(t, "refresh-code1", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.ExpiresAt.IsZero())

	profile, err := f.store.Profiles().Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.SpotifyID)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "https://img/alice", profile.ImageURL)
}

func TestHandleCallbackReusesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.HandleCallback(ctx, "code1")
	require.NoError(t, err)
	second, err := f.manager.HandleCallback(ctx, "code2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.store.Users().Count())

	token, err := f.store.Tokens().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-code2", token.AccessToken, "latest callback overwrites the token")
}

func TestHandleCallbackErrors(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.HandleCallback(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingCode)
	})

	t.Run("rejected code creates no user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.HandleCallback(context.Background(), "bad-code")
		assert.Error(t, err)
		assert.Equal(t, 0, f.store.Users().Count())
	})

	t.Run("profile failure creates no user", func(t *testing.T) {
		f := newFixture(t)
		f.srv.Fail("/v1/me", 500)
		_, err := f.manager.HandleCallback(context.Background(), "code1")
		assert.Error(t, err)
		assert.Equal(t, 0, f.store.Users().Count())
	})
}

func TestClientForWithoutToken(t *testing.T) {
	f := newFixture(t)
	user, _, err := f.store.Users().GetOrCreate(context.Background(), "nobody")
	require.NoError(t, err)

	_, err = f.manager.ClientFor(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClientForFreshTokenSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.manager.HandleCallback(ctx, "code1")
	require.NoError(t, err)

	client, err := f.manager.ClientFor(ctx, user.ID)
	require.NoError(t, err)
	_, err = client.CurrentProfile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, f.srv.Refreshes())
	assert.Equal(t, "Bearer access-code1", f.srv.LastAuthorization())
}

func TestClientForRefreshesExpiredToken(t *testing.T) {
	tests := []struct {
		name        string
		rotate      bool
		wantRefresh string
	}{
		{name: "refresh token kept", rotate: false, wantRefresh: "refresh-code1"},
		{name: "refresh token rotated", rotate: true, wantRefresh: "rotated-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.srv.RotateRefreshTokens(tt.rotate)
			ctx := context.Background()

			user, err := f.manager.HandleCallback(ctx, "code1")
			require.NoError(t, err)

			// Move past the one-hour expiry.
			f.now = f.now.Add(2 * time.Hour)

			client, err := f.manager.ClientFor(ctx, user.ID)
			require.NoError(t, err)

			token, err := f.store.Tokens().Get(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, "refreshed-1", token.AccessToken, "refreshed token persisted before use")
			assert.Equal(t, tt.wantRefresh, token.RefreshToken)
			assert.Equal(t, 1, f.srv.Refreshes())

			_, err = client.CurrentProfile(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Bearer refreshed-1", f.srv.LastAuthorization())
		})
	}
}

func TestClientForExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, _, err := f.store.Users().GetOrCreate(ctx, "edge")
	require.NoError(t, err)

	require.NoError(t, f.store.Tokens().Upsert(ctx, &db.Token{
		UserID:       user.ID,
		AccessToken:  "old",
		RefreshToken: "r",
		ExpiresAt:    f.now,
		TokenType:    "Bearer",
	}))

	_, err = f.manager.ClientFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Refreshes(), "a token expiring exactly now is refreshed")
}

func TestClientForRefreshFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.manager.HandleCallback(ctx, "code1")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	f.srv.Fail("/api/token", 400)

	_, err = f.manager.ClientFor(ctx, user.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotAuthenticated))

	token, err := f.store.Tokens().Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-code1", token.AccessToken, "failed refresh leaves the stored token alone")
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
