package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/mixbot/internal/models"
)

// searchLimit bounds how many track candidates a search returns for matching.
const searchLimit = 5

// Profile retrieves the linked account's profile.
func (c *SpotifyClient) Profile(ctx context.Context, userID string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.request(ctx, userID, http.MethodGet, "/me", nil, nil, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchTrack queries the catalog for tracks matching the free-text query and
// returns up to five candidates in provider ranking order.
func (c *SpotifyClient) SearchTrack(ctx context.Context, userID, query string) ([]SpotifyTrack, error) {
	params := url.Values{
		"q":     {query},
		"type":  {"track"},
		"limit": {strconv.Itoa(searchLimit)},
	}

	var response searchResponse
	if err := c.request(ctx, userID, http.MethodGet, "/search", params, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}

	return decodeItems[SpotifyTrack](response.Tracks.Items), nil
}

// CreatePlaylist creates a private playlist on the linked account.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, userID, name, description string) (*models.Playlist, error) {
	profile, err := c.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var created SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(profile.ID))
	if err := c.request(ctx, userID, http.MethodPost, endpoint, nil, body, &created, http.StatusCreated); err != nil {
		return nil, err
	}

	return &models.Playlist{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		URL:         created.ExternalURLs.Spotify,
		Public:      created.Public,
	}, nil
}

// AddTracks appends track URIs to a playlist in order.
func (c *SpotifyClient) AddTracks(ctx context.Context, userID, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}

	body := map[string]any{"uris": uris}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return c.request(ctx, userID, http.MethodPost, endpoint, nil, body, nil, http.StatusCreated)
}

// TopArtists retrieves the user's medium-term top artists.
func (c *SpotifyClient) TopArtists(ctx context.Context, userID string, limit int) ([]SpotifyArtist, error) {
	var response pagedItems
	params := url.Values{"limit": {strconv.Itoa(limit)}, "time_range": {"medium_term"}}
	if err := c.request(ctx, userID, http.MethodGet, "/me/top/artists", params, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return decodeItems[SpotifyArtist](response.Items), nil
}

// TopTracks retrieves the user's medium-term top tracks.
func (c *SpotifyClient) TopTracks(ctx context.Context, userID string, limit int) ([]SpotifyTrack, error) {
	var response pagedItems
	params := url.Values{"limit": {strconv.Itoa(limit)}, "time_range": {"medium_term"}}
	if err := c.request(ctx, userID, http.MethodGet, "/me/top/tracks", params, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return decodeItems[SpotifyTrack](response.Items), nil
}

// RecentlyPlayed retrieves the user's most recent listens.
func (c *SpotifyClient) RecentlyPlayed(ctx context.Context, userID string, limit int) ([]SpotifyTrack, error) {
	var response pagedItems
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.request(ctx, userID, http.MethodGet, "/me/player/recently-played", params, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}

	items := decodeItems[playHistoryItem](response.Items)
	tracks := make([]SpotifyTrack, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, item.Track)
	}
	return tracks, nil
}

// CurrentlyPlaying returns the track currently playing, or nil when playback
// is stopped. A 204 response means no active session.
func (c *SpotifyClient) CurrentlyPlaying(ctx context.Context, userID string) (*models.TrackInfo, error) {
	var response currentlyPlayingResponse
	err := c.request(ctx, userID, http.MethodGet, "/me/player/currently-playing", nil, nil, &response, http.StatusOK)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.Status == http.StatusNoContent {
			return nil, nil
		}
		return nil, err
	}

	if response.Item == nil {
		return nil, nil
	}

	info := trackInfoFrom(*response.Item)
	info.IsPlaying = response.IsPlaying
	return info, nil
}

func trackInfoFrom(track SpotifyTrack) *models.TrackInfo {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}
	return &models.TrackInfo{
		Title:   track.Name,
		Artists: artists,
		Album:   track.Album.Name,
		URL:     track.ExternalURLs.Spotify,
	}
}
