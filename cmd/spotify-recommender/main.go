// Command spotify-recommender runs the Spotify Recommender web application.
//
// Configuration is read from defaults, an optional config.yaml, a .env file
// and the process environment, in that order of precedence:
//
//	export SPOTIFY_CLIENT_ID=...
//	export SPOTIFY_CLIENT_SECRET=...
//	export DATABASE_URL=postgres://localhost/recommender  # optional
//	./spotify-recommender
//
// Without DATABASE_URL all data is kept in memory and lost on restart.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/justestif/go-spotify-recommender/internal/auth"
	"github.com/justestif/go-spotify-recommender/internal/config"
	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/memstore"
	"github.com/justestif/go-spotify-recommender/internal/recommend"
	"github.com/justestif/go-spotify-recommender/internal/sync"
	"github.com/justestif/go-spotify-recommender/internal/web"
	webfs "github.com/justestif/go-spotify-recommender/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// repositories is the storage backend, either PostgreSQL or in-memory.
type repositories struct {
	users interface {
		auth.UserStore
		web.UserReader
	}
	tokens   auth.TokenStore
	profiles interface {
		auth.ProfileStore
		web.ProfileReader
	}
	tracks   sync.TrackStore
	history  sync.HistoryStore
	recs     recommend.RecommendationStore
	sessions web.SessionRepository
	close    func()
}

func openRepositories(ctx context.Context, databaseURL string) (*repositories, error) {
	if databaseURL == "" {
		logging.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		store := memstore.New()
		return &repositories{
			users:    store.Users(),
			tokens:   store.Tokens(),
			profiles: store.Profiles(),
			tracks:   store.Tracks(),
			history:  store.History(),
			recs:     store.Recommendations(),
			sessions: store.Sessions(),
			close:    func() {},
		}, nil
	}

	database, err := db.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	logging.Info().Msg("Connected to PostgreSQL")

	return &repositories{
		users:    database.Users(),
		tokens:   database.Tokens(),
		profiles: database.Profiles(),
		tracks:   database.Tracks(),
		history:  database.History(),
		recs:     database.Recommendations(),
		sessions: database.Sessions(),
		close:    database.Close,
	}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repos, err := openRepositories(ctx, cfg.Database.URL)
	cancel()
	if err != nil {
		return err
	}
	defer repos.close()

	manager := auth.New(auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		Scopes:       cfg.Spotify.Scopes(),
	}, repos.users, repos.tokens, repos.profiles)

	sessions := web.NewSessionStore(repos.sessions, web.SessionConfig{
		TTL:          cfg.Server.SessionTTL,
		CookieSecure: cfg.Server.CookieSecure,
	})
	if n, err := sessions.PurgeExpired(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Failed to purge expired sessions")
	} else if n > 0 {
		logging.Info().Int64("count", n).Msg("Purged expired sessions")
	}

	templates, err := webfs.Templates()
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}

	static, err := webfs.Static()
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:              cfg.Server.Addr,
		TemplatesFS:       templates,
		StaticFS:          static,
		PipelineRateLimit: cfg.Server.PipelineRateLimit,
		CookieSecure:      cfg.Server.CookieSecure,
		Auth:              manager,
		Ingest:            sync.New(manager, repos.tracks, repos.history),
		Recommend:         recommend.New(manager, repos.tracks, repos.recs),
		Users:             repos.users,
		Profiles:          repos.profiles,
		Sessions:          sessions,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run()
}
