package services

// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/

import "encoding/json"

// apiErrorBody is the provider's error envelope. Reason is only populated on
// player endpoints (e.g. PREMIUM_REQUIRED, NO_ACTIVE_DEVICE).
type apiErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	Popularity   int             `json:"popularity"`
	URI          string          `json:"uri"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyDevice represents a registered playback target.
type SpotifyDevice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"` // Computer, Smartphone, Speaker, ...
	IsActive     bool   `json:"is_active"`
	IsRestricted bool   `json:"is_restricted"`
}

// SpotifyPlaylist represents a created playlist.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Public       bool         `json:"public"`
	URI          string       `json:"uri"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// searchResponse is the /search payload, reduced to the track page.
type searchResponse struct {
	Tracks struct {
		Items json.RawMessage `json:"items"`
	} `json:"tracks"`
}

type devicesResponse struct {
	Devices json.RawMessage `json:"devices"`
}

type pagedItems struct {
	Items json.RawMessage `json:"items"`
}

type playHistoryItem struct {
	Track SpotifyTrack `json:"track"`
}

// currentlyPlayingResponse is the /me/player/currently-playing payload.
type currentlyPlayingResponse struct {
	IsPlaying bool          `json:"is_playing"`
	Item      *SpotifyTrack `json:"item"`
}

// playerStateResponse is the /me/player payload, reduced to what the bot
// surfaces.
type playerStateResponse struct {
	IsPlaying bool           `json:"is_playing"`
	Device    *SpotifyDevice `json:"device"`
	Item      *SpotifyTrack  `json:"item"`
}

// decodeItems unmarshals a raw collection field, treating an absent or
// ill-typed value as empty rather than failing the whole response.
func decodeItems[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}
