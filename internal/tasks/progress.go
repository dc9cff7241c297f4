package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the bot layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	GatherTaste Phase = iota
	PlanTracks
	SearchTracks
	CreatePlaylist
	AddTracks
)

func (p Phase) String() string {
	switch p {
	case GatherTaste:
		return "gather_taste"
	case PlanTracks:
		return "plan_tracks"
	case SearchTracks:
		return "search_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	default:
		return ""
	}
}

func gatheringTasteUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   GatherTaste,
		Message: "Reading your listening history...",
	}
}

func planningTracksUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlanTracks,
		Message: "Planning tracks for your mix...",
	}
}

func searchingTracksUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Finding tracks (%d/%d)...", step, total),
	}
}

func creatingPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Message: fmt.Sprintf("Creating playlist %q...", name),
	}
}

func addingTracksUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Message: fmt.Sprintf("Adding %d tracks...", count),
	}
}

// sendProgress delivers an update without blocking; a slow or absent
// listener never stalls the operation.
func (e *MixEngine) sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}
