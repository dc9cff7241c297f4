// package models defines the data model for the mixbot service
package models

import "time"

// UserProfile carries the external identity attributes delivered with every
// inbound Telegram interaction.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// User is a persisted account row keyed by an internal uuid.
type User struct {
	ID         string
	Sequence   int
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SpotifyTokens is the credential record for a linked Spotify account.
//
// At most one live record exists per user. RefreshToken is empty once the
// provider reports it revoked; the whole record is deleted shortly after.
type SpotifyTokens struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        string
	TokenType    string
	ExpiresAt    time.Time
}

// AuthState is an ephemeral record binding an OAuth state token to the PKCE
// verifier and, optionally, the user who started the flow. Consumed once.
type AuthState struct {
	State        string
	CodeVerifier string
	UserID       string
}

// MixRateLimit is one row of the per-user-per-day request ledger.
type MixRateLimit struct {
	UserID          string
	RequestDate     string
	RequestCount    int
	LastRequestAt   int64
	ProcessingUntil int64
}

// PlannedTrack is a single (artist, title) pair proposed by the planner.
type PlannedTrack struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// PlaylistPlan is the validated output of a planning run.
type PlaylistPlan struct {
	Tracks []PlannedTrack `json:"tracks"`
}

// ResolvedTrack pairs a planned track with the catalog URI it matched.
type ResolvedTrack struct {
	Planned PlannedTrack
	URI     string
}

// Playlist represents a created or fetched Spotify playlist.
type Playlist struct {
	ID          string
	Name        string
	Description string
	URL         string
	Public      bool
}

// TrackInfo is the now-playing summary surfaced to the messaging layer.
type TrackInfo struct {
	Title     string
	Artists   []string
	Album     string
	URL       string
	IsPlaying bool
}

// Device is a playback target registered with the provider.
type Device struct {
	ID           string
	Name         string
	Type         string
	IsActive     bool
	IsRestricted bool
}

// PlaybackAction enumerates the playback commands the bot layer can issue.
type PlaybackAction string

const (
	ActionPlay     PlaybackAction = "play"
	ActionPause    PlaybackAction = "pause"
	ActionNext     PlaybackAction = "next"
	ActionPrevious PlaybackAction = "previous"
)
