// Package web provides the HTTP server and web UI for the Spotify Recommender.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justestif/go-spotify-recommender/internal/auth"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/metrics"
	"github.com/justestif/go-spotify-recommender/internal/recommend"
	"github.com/justestif/go-spotify-recommender/internal/sync"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8000"

// ServerConfig holds server configuration and collaborators.
type ServerConfig struct {
	Addr        string
	TemplatesFS fs.FS
	StaticFS    fs.FS

	// PipelineRateLimit is the number of pipeline triggers allowed per
	// minute per client IP. Zero disables limiting.
	PipelineRateLimit int
	CookieSecure      bool

	Auth      *auth.Manager
	Ingest    *sync.Service
	Recommend *recommend.Service
	Users     UserReader
	Profiles  ProfileReader
	Sessions  SessionManager
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		router: chi.NewRouter(),
		handlers: &Handlers{
			auth:      cfg.Auth,
			ingest:    cfg.Ingest,
			recommend: cfg.Recommend,
			users:     cfg.Users,
			profiles:  cfg.Profiles,
			sessions:  cfg.Sessions,
			templates: templates,
			secure:    cfg.CookieSecure,
		},
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS, cfg.PipelineRateLimit)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(metrics.Middleware)
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(staticFS fs.FS, rateLimit int) {
	h := s.handlers

	fileServer := http.FileServer(http.FS(staticFS))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/", h.Home)
	s.router.Get("/login/", h.Login)
	s.router.Get("/callback/", h.Callback)
	s.router.Post("/logout/", h.Logout)

	s.router.Group(func(r chi.Router) {
		r.Use(h.RequireSession)

		r.Get("/dashboard/", h.Dashboard)
		r.Get("/recommendations/", h.Recommendations)
		r.Get("/history/", h.History)

		r.Group(func(r chi.Router) {
			if rateLimit > 0 {
				r.Use(httprate.LimitByIP(rateLimit, time.Minute))
			}
			r.Post("/fetch-history/", h.FetchHistory)
			r.Get("/generate-recommendations/", h.GenerateRecommendations)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.server.Addr).Msgf("Starting server at http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logging.Info().Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logging.Info().Msg("Server stopped")
	return nil
}
