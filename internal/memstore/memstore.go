// Package memstore provides in-memory implementations of the repositories in
// package db. It is used when no DATABASE_URL is configured and in tests.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-recommender/internal/db"
)

// ErrDuplicate is returned when an insert would violate a uniqueness rule.
var ErrDuplicate = errors.New("duplicate key")

type historyKey struct {
	userID   uuid.UUID
	trackID  string
	playedAt int64
}

// Store holds all entities in memory behind a single lock.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	users    map[uuid.UUID]db.User
	byName   map[string]uuid.UUID
	tokens   map[uuid.UUID]db.Token
	profiles map[uuid.UUID]db.Profile
	tracks   map[string]db.Track
	history  map[historyKey]db.HistoryEntry
	recs     map[uuid.UUID][]db.Recommendation
	sessions map[string]db.Session
	nextID   int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[uuid.UUID]db.User),
		byName:   make(map[string]uuid.UUID),
		tokens:   make(map[uuid.UUID]db.Token),
		profiles: make(map[uuid.UUID]db.Profile),
		tracks:   make(map[string]db.Track),
		history:  make(map[historyKey]db.HistoryEntry),
		recs:     make(map[uuid.UUID][]db.Recommendation),
		sessions: make(map[string]db.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Users returns a UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Tokens returns a TokenRepository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s} }

// Profiles returns a ProfileRepository.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s} }

// Tracks returns a TrackRepository.
func (s *Store) Tracks() *TrackRepository { return &TrackRepository{s} }

// History returns a HistoryRepository.
func (s *Store) History() *HistoryRepository { return &HistoryRepository{s} }

// Recommendations returns a RecommendationRepository.
func (s *Store) Recommendations() *RecommendationRepository { return &RecommendationRepository{s} }

// Sessions returns a SessionRepository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// UserRepository is the in-memory counterpart of db.UserRepository.
type UserRepository struct{ s *Store }

// GetOrCreate returns the user with the given username, creating it if needed.
func (r *UserRepository) GetOrCreate(_ context.Context, username string) (*db.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.byName[username]; ok {
		u := r.s.users[id]
		return &u, false, nil
	}
	u := db.User{ID: uuid.New(), Username: username, CreatedAt: r.s.now()}
	r.s.users[u.ID] = u
	r.s.byName[username] = u.ID
	return &u, true, nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*db.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &u, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users)
}

// TokenRepository is the in-memory counterpart of db.TokenRepository.
type TokenRepository struct{ s *Store }

// Upsert creates or overwrites the token for token.UserID.
func (r *TokenRepository) Upsert(_ context.Context, token *db.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.tokens[token.UserID]; ok {
		token.CreatedAt = existing.CreatedAt
	} else {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	r.s.tokens[token.UserID] = *token
	return nil
}

// Get retrieves the token for a user.
func (r *TokenRepository) Get(_ context.Context, userID uuid.UUID) (*db.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tokens[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &t, nil
}

// ProfileRepository is the in-memory counterpart of db.ProfileRepository.
type ProfileRepository struct{ s *Store }

// Upsert creates or overwrites the profile for profile.UserID.
func (r *ProfileRepository) Upsert(_ context.Context, profile *db.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.profiles[profile.UserID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	r.s.profiles[profile.UserID] = *profile
	return nil
}

// Get retrieves the profile for a user.
func (r *ProfileRepository) Get(_ context.Context, userID uuid.UUID) (*db.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &p, nil
}

// TrackRepository is the in-memory counterpart of db.TrackRepository.
type TrackRepository struct{ s *Store }

// GetOrCreate inserts the track unless one with the same ID exists.
func (r *TrackRepository) GetOrCreate(_ context.Context, track *db.Track) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.tracks[track.ID]; ok {
		*track = existing
		return false, nil
	}
	track.CreatedAt = r.s.now()
	r.s.tracks[track.ID] = *track
	return true, nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(_ context.Context, id string) (*db.Track, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tracks[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &t, nil
}

// HistoryRepository is the in-memory counterpart of db.HistoryRepository.
type HistoryRepository struct{ s *Store }

// GetOrCreate records a play unless the same (user, track, played_at) exists.
func (r *HistoryRepository) GetOrCreate(_ context.Context, userID uuid.UUID, trackID string, playedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := historyKey{userID: userID, trackID: trackID, playedAt: playedAt.UnixNano()}
	if _, ok := r.s.history[key]; ok {
		return false, nil
	}
	r.s.history[key] = db.HistoryEntry{
		ID:        r.s.id(),
		UserID:    userID,
		TrackID:   trackID,
		PlayedAt:  playedAt,
		CreatedAt: r.s.now(),
	}
	return true, nil
}

// ListRecent returns up to limit entries for a user, newest first.
func (r *HistoryRepository) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]db.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var entries []db.HistoryEntry
	for _, e := range r.s.history {
		if e.UserID != userID {
			continue
		}
		e.Track = r.s.tracks[e.TrackID]
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b db.HistoryEntry) int {
		if c := b.PlayedAt.Compare(a.PlayedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RecommendationRepository is the in-memory counterpart of db.RecommendationRepository.
type RecommendationRepository struct{ s *Store }

// Create inserts a recommendation. It rejects a duplicate (user, track) pair
// the way the database unique constraint does.
func (r *RecommendationRepository) Create(_ context.Context, rec *db.Recommendation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.recs[rec.UserID] {
		if existing.TrackID == rec.TrackID {
			return ErrDuplicate
		}
	}
	rec.ID = r.s.id()
	rec.CreatedAt = r.s.now()
	r.s.recs[rec.UserID] = append(r.s.recs[rec.UserID], *rec)
	return nil
}

// DeleteForUser removes all recommendations for a user.
func (r *RecommendationRepository) DeleteForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := int64(len(r.s.recs[userID]))
	delete(r.s.recs, userID)
	return n, nil
}

// ListForUser returns all recommendations for a user, highest score first,
// newest first among equal scores.
func (r *RecommendationRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]db.Recommendation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	recs := make([]db.Recommendation, 0, len(r.s.recs[userID]))
	for _, rec := range r.s.recs[userID] {
		rec.Track = r.s.tracks[rec.TrackID]
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b db.Recommendation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return recs, nil
}

// SessionRepository is the in-memory counterpart of db.SessionRepository.
type SessionRepository struct{ s *Store }

// Create inserts a new session.
func (r *SessionRepository) Create(_ context.Context, session *db.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[session.ID] = *session
	return nil
}

// Get retrieves an unexpired session by ID.
func (r *SessionRepository) Get(_ context.Context, id string) (*db.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok || !session.ExpiresAt.After(r.s.now()) {
		return nil, db.ErrNotFound
	}
	return &session, nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

// DeleteExpired removes all expired sessions.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var n int64
	for id, session := range r.s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}
