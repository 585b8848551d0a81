//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestDB starts a PostgreSQL container and returns a migrated DB.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("recommender_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	database, err := New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, database.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, database.Migrate(ctx))
	return database
}

func TestRepositories(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user, created, err := database.Users().GetOrCreate(ctx, "listener")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := database.Users().GetOrCreate(ctx, "listener")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	t.Run("tokens", func(t *testing.T) {
		_, err := database.Tokens().Get(ctx, user.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
		require.NoError(t, database.Tokens().Upsert(ctx, &Token{
			UserID: user.ID, AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiry, TokenType: "Bearer",
		}))
		require.NoError(t, database.Tokens().Upsert(ctx, &Token{
			UserID: user.ID, AccessToken: "a2", RefreshToken: "r1", ExpiresAt: expiry, TokenType: "Bearer",
		}))

		tok, err := database.Tokens().Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "a2", tok.AccessToken)
		assert.True(t, tok.ExpiresAt.Equal(expiry))
	})

	t.Run("profiles", func(t *testing.T) {
		require.NoError(t, database.Profiles().Upsert(ctx, &Profile{
			UserID: user.ID, SpotifyID: "listener", DisplayName: "Old",
		}))
		require.NoError(t, database.Profiles().Upsert(ctx, &Profile{
			UserID: user.ID, SpotifyID: "listener", DisplayName: "New",
		}))

		p, err := database.Profiles().Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "New", p.DisplayName)
	})

	t.Run("tracks keep first write", func(t *testing.T) {
		created, err := database.Tracks().GetOrCreate(ctx, &Track{ID: "t1", Name: "First"})
		require.NoError(t, err)
		assert.True(t, created)

		second := &Track{ID: "t1", Name: "Second"}
		created, err = database.Tracks().GetOrCreate(ctx, second)
		require.NoError(t, err)
		assert.False(t, created)

		stored, err := database.Tracks().Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "First", stored.Name)
	})

	t.Run("history dedup and order", func(t *testing.T) {
		_, err := database.Tracks().GetOrCreate(ctx, &Track{ID: "t2", Name: "Other"})
		require.NoError(t, err)

		played := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
		for _, p := range []struct {
			track string
			at    time.Time
			want  bool
		}{
			{"t1", played, true},
			{"t1", played, false},
			{"t1", played.Add(time.Hour), true},
			{"t2", played.Add(30 * time.Minute), true},
		} {
			created, err := database.History().GetOrCreate(ctx, user.ID, p.track, p.at)
			require.NoError(t, err)
			assert.Equal(t, p.want, created)
		}

		entries, err := database.History().ListRecent(ctx, user.ID, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "t1", entries[0].TrackID)
		assert.Equal(t, "t2", entries[1].TrackID)
		assert.Equal(t, "Other", entries[1].Track.Name)
	})

	t.Run("recommendations", func(t *testing.T) {
		_, err := database.Tracks().GetOrCreate(ctx, &Track{ID: "t3", Name: "Third"})
		require.NoError(t, err)

		for _, r := range []struct {
			track string
			score float64
		}{{"t1", 0.8}, {"t2", 0.9}, {"t3", 0.8}} {
			require.NoError(t, database.Recommendations().Create(ctx, &Recommendation{
				UserID: user.ID, TrackID: r.track, Score: r.score, Reason: "test",
			}))
		}

		err = database.Recommendations().Create(ctx, &Recommendation{UserID: user.ID, TrackID: "t1", Score: 0.5})
		assert.Error(t, err, "one recommendation per user and track")

		recs, err := database.Recommendations().ListForUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, []string{"t2", "t3", "t1"}, []string{recs[0].TrackID, recs[1].TrackID, recs[2].TrackID})

		n, err := database.Recommendations().DeleteForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("sessions", func(t *testing.T) {
		now := time.Now()
		live := &Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		stale := &Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}
		require.NoError(t, database.Sessions().Create(ctx, live))
		require.NoError(t, database.Sessions().Create(ctx, stale))

		_, err := database.Sessions().Get(ctx, live.ID)
		require.NoError(t, err)
		_, err = database.Sessions().Get(ctx, stale.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := database.Sessions().DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("deleting a user cascades", func(t *testing.T) {
		require.NoError(t, database.Tokens().Upsert(ctx, &Token{
			UserID: user.ID, AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour), TokenType: "Bearer",
		}))
		require.NoError(t, database.Recommendations().Create(ctx, &Recommendation{
			UserID: user.ID, TrackID: "t1", Score: 0.8,
		}))
		now := time.Now()
		session := &Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, database.Sessions().Create(ctx, session))

		require.NoError(t, database.Users().Delete(ctx, user.ID))
		assert.ErrorIs(t, database.Users().Delete(ctx, user.ID), ErrNotFound)

		_, err := database.Users().Get(ctx, user.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = database.Tokens().Get(ctx, user.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = database.Profiles().Get(ctx, user.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = database.Sessions().Get(ctx, session.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		entries, err := database.History().ListRecent(ctx, user.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
		recs, err := database.Recommendations().ListForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, recs)

		track, err := database.Tracks().Get(ctx, "t1")
		require.NoError(t, err, "catalog tracks are shared and survive")
		assert.Equal(t, "First", track.Name)
	})
}
