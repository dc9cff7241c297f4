package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/mixbot/internal/planner"
	"github.com/desertthunder/mixbot/internal/services"
)

// historyLimit bounds each taste fetch feeding the planner prompt.
const historyLimit = 10

// BuildListenerContext gathers the user's top artists, top tracks, and
// recent listens concurrently. Each fetch is independent; a failure logs and
// leaves its slice empty so planning can proceed on whatever is available.
func (e *MixEngine) BuildListenerContext(ctx context.Context, userID string) planner.ListenerContext {
	var (
		wg       sync.WaitGroup
		listener planner.ListenerContext
	)

	wg.Add(3)

	go func() {
		defer wg.Done()
		artists, err := e.spotify.TopArtists(ctx, userID, historyLimit)
		if err != nil {
			e.logger.Debug("top artists unavailable", "user", userID, "error", err)
			return
		}
		for _, artist := range artists {
			listener.TopArtists = append(listener.TopArtists, artist.Name)
		}
	}()

	go func() {
		defer wg.Done()
		tracks, err := e.spotify.TopTracks(ctx, userID, historyLimit)
		if err != nil {
			e.logger.Debug("top tracks unavailable", "user", userID, "error", err)
			return
		}
		listener.TopTracks = trackLines(tracks)
	}()

	go func() {
		defer wg.Done()
		recent, err := e.spotify.RecentlyPlayed(ctx, userID, historyLimit)
		if err != nil {
			e.logger.Debug("recent listens unavailable", "user", userID, "error", err)
			return
		}
		listener.RecentTracks = trackLines(recent)
	}()

	wg.Wait()
	return listener
}

// trackLines renders tracks as "Artist - Title" lines for the prompt.
func trackLines(tracks []services.SpotifyTrack) []string {
	lines := make([]string, 0, len(tracks))
	for _, track := range tracks {
		artist := ""
		if len(track.Artists) > 0 {
			artist = track.Artists[0].Name
		}
		lines = append(lines, fmt.Sprintf("%s - %s", artist, track.Name))
	}
	return lines
}
