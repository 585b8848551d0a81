package spotify

import "time"

// Track contains the track metadata the catalog stores.
type Track struct {
	ID          string
	Name        string
	Artist      string // Comma-separated artist names
	Album       string
	CoverURL    string // First album image, or ""
	PreviewURL  string // "" when Spotify has no preview
	ExternalURL string
	DurationMs  int
}

// Play is one entry of the user's recently played list.
type Play struct {
	Track    Track
	PlayedAt time.Time
}

// Profile is the current user's Spotify account snapshot.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
	Country     string
	ImageURL    string
}

// Features holds the audio features used to target recommendations.
type Features struct {
	TrackID      string
	Danceability float64
	Energy       float64
	Valence      float64
	Tempo        float64
}
