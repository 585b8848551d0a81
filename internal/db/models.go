package db

import (
	"time"

	"github.com/google/uuid"
)

// User is the local identity record. Username holds the Spotify user ID.
type User struct {
	ID        uuid.UUID
	Username  string
	CreatedAt time.Time
}

// Token holds the Spotify OAuth credentials for a user.
type Token struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is at or past its expiry.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Profile is a snapshot of the user's Spotify profile.
type Profile struct {
	UserID      uuid.UUID
	SpotifyID   string
	DisplayName string
	Email       string
	Country     string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Track represents a Spotify track. ID is the Spotify track ID.
type Track struct {
	ID          string
	Name        string
	Artist      string // Comma-separated artist names
	Album       string
	CoverURL    string
	PreviewURL  string
	ExternalURL string
	DurationMs  int
	CreatedAt   time.Time
}

// HistoryEntry is a single play of a track by a user.
type HistoryEntry struct {
	ID        int64
	UserID    uuid.UUID
	TrackID   string
	PlayedAt  time.Time
	CreatedAt time.Time
	Track     Track // populated by list queries
}

// Recommendation is a track recommended to a user.
type Recommendation struct {
	ID        int64
	UserID    uuid.UUID
	TrackID   string
	Score     float64
	Reason    string
	CreatedAt time.Time
	Track     Track // populated by list queries
}

// Session represents an authenticated web session.
type Session struct {
	ID        string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}
