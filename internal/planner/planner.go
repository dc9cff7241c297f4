// package planner turns free-text listening prompts into concrete track
// plans using a language model.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

const (
	// defaultTrackCount is how many tracks a plan asks for when the prompt
	// does not imply a length.
	defaultTrackCount = 15

	// maxTrackCount caps a plan regardless of what the model returns.
	maxTrackCount = 30
)

// ListenerContext summarizes the requesting user's taste for the prompt.
// Any field may be empty; planning degrades gracefully without history.
type ListenerContext struct {
	TopArtists   []string
	TopTracks    []string
	RecentTracks []string
}

// Planner produces a track plan for a listening prompt.
type Planner interface {
	PlanPlaylist(ctx context.Context, prompt string, listener ListenerContext) (*models.PlaylistPlan, error)

	// FindTrack names the single recording that best matches a free-text
	// description, such as a lyric fragment or a vibe.
	FindTrack(ctx context.Context, description string) (*models.PlannedTrack, error)
}

// ValidatePlan normalizes a raw plan: entries are trimmed, entries missing a
// title or artist are dropped, duplicates collapse, and the track count is
// capped. An empty result is an error.
func ValidatePlan(plan *models.PlaylistPlan) (*models.PlaylistPlan, error) {
	if plan == nil {
		return nil, shared.ErrEmptyPlan
	}

	seen := make(map[string]bool)
	cleaned := make([]models.PlannedTrack, 0, len(plan.Tracks))

	for _, track := range plan.Tracks {
		title := strings.TrimSpace(track.Title)
		artist := strings.TrimSpace(track.Artist)
		if title == "" || artist == "" {
			continue
		}

		key := strings.ToLower(artist) + "\x00" + strings.ToLower(title)
		if seen[key] {
			continue
		}
		seen[key] = true

		cleaned = append(cleaned, models.PlannedTrack{Title: title, Artist: artist})
		if len(cleaned) == maxTrackCount {
			break
		}
	}

	if len(cleaned) == 0 {
		return nil, shared.ErrEmptyPlan
	}

	return &models.PlaylistPlan{Tracks: cleaned}, nil
}

// SearchQuery renders a planned track as a catalog search query.
func SearchQuery(track models.PlannedTrack) string {
	return fmt.Sprintf("track:%s artist:%s", track.Title, track.Artist)
}
