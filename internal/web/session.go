package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
)

const (
	sessionCookieName = "session_id"
	stateCookieName   = "oauth_state"

	// DefaultSessionTTL is used when SessionConfig.TTL is zero.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionRepository persists sessions. Both db.SessionRepository and
// memstore.SessionRepository satisfy it.
type SessionRepository interface {
	Create(ctx context.Context, session *db.Session) error
	Get(ctx context.Context, id string) (*db.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager defines the interface for session management.
type SessionManager interface {
	Create(ctx context.Context, userID uuid.UUID) (*db.Session, error)
	Delete(ctx context.Context, id string)
	GetFromRequest(r *http.Request) *db.Session
	SetCookie(w http.ResponseWriter, session *db.Session)
	ClearCookie(w http.ResponseWriter)
}

// SessionConfig configures a SessionStore.
type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
}

// SessionStore maps browser cookies to local users through a repository.
type SessionStore struct {
	repo   SessionRepository
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionStore creates a session store backed by repo.
func NewSessionStore(repo SessionRepository, cfg SessionConfig) *SessionStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		repo:   repo,
		ttl:    ttl,
		secure: cfg.CookieSecure,
		now:    time.Now,
	}
}

// Create starts a new session for the user.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID) (*db.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &db.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, id string) {
	if err := s.repo.Delete(ctx, id); err != nil {
		logging.Warn().Err(err).Msg("Failed to delete session")
	}
}

// GetFromRequest extracts the session from the request cookie. It returns
// nil for a missing, unknown or expired session.
func (s *SessionStore) GetFromRequest(r *http.Request) *db.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}

	session, err := s.repo.Get(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logging.Error().Err(err).Msg("Failed to load session")
		}
		return nil
	}
	return session
}

// PurgeExpired removes expired sessions from the repository.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

// SetCookie sets the session cookie on the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *db.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
}

// ClearCookie removes the session cookie from the response.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		MaxAge:   -1,
	})
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var _ SessionManager = (*SessionStore)(nil)
