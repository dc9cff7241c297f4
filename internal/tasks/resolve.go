package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/planner"
	"github.com/desertthunder/mixbot/internal/services"
	"golang.org/x/time/rate"
)

const (
	// resolveConcurrency bounds in-flight catalog searches.
	resolveConcurrency = 5

	// resolveBatchSize is how many tracks resolve between pauses.
	resolveBatchSize = 10

	// resolveBatchPause rests the search endpoint between batches.
	resolveBatchPause = 500 * time.Millisecond
)

// TrackSearcher is the catalog surface track resolution needs.
// *services.SpotifyClient satisfies it.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, userID, query string) ([]services.SpotifyTrack, error)
}

// ResolveResult partitions a plan into matched and unmatched tracks, both in
// plan order.
type ResolveResult struct {
	Found   []models.ResolvedTrack
	Missing []models.PlannedTrack
}

// ResolveTracks searches the catalog for every planned track in batches of
// resolveBatchSize, at most resolveConcurrency searches in flight within a
// batch and a pause between batches. Progress is reported once per batch.
//
// A track whose search fails with a [services.ClientError] aborts the whole
// resolution, since the same rejection would hit every remaining search; a
// track that merely finds no match lands in Missing.
func (e *MixEngine) ResolveTracks(ctx context.Context, prog chan<- ProgressUpdate, userID string, tracks []models.PlannedTrack) (*ResolveResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	matched := make([]*models.ResolvedTrack, len(tracks))
	limiter := rate.NewLimiter(rate.Every(resolveBatchPause), 1)

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sem := make(chan struct{}, resolveConcurrency)

	for start := 0; start < len(tracks); start += resolveBatchSize {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		end := start + resolveBatchSize
		if end > len(tracks) {
			end = len(tracks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			select {
			case <-ctx.Done():
			case sem <- struct{}{}:
				wg.Add(1)
				go func(idx int, planned models.PlannedTrack) {
					defer wg.Done()
					defer func() { <-sem }()

					candidates, err := e.spotify.SearchTrack(ctx, userID, planner.SearchQuery(planned))
					if err != nil {
						var clientErr *services.ClientError
						if errors.As(err, &clientErr) || errors.Is(err, context.Canceled) {
							fail(err)
							return
						}
						// transient failure: treat as unmatched
						return
					}

					if uri := matchTrack(planned, candidates); uri != "" {
						matched[idx] = &models.ResolvedTrack{Planned: planned, URI: uri}
					}
				}(i, tracks[i])
			}
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
		e.sendProgress(prog, searchingTracksUpdate(end, len(tracks)))
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ResolveResult{}
	for i, track := range tracks {
		if matched[i] != nil {
			result.Found = append(result.Found, *matched[i])
		} else {
			result.Missing = append(result.Missing, track)
		}
	}

	return result, nil
}

// matchTrack picks the best candidate URI for a planned track, or "" when
// nothing usable came back.
//
// Candidates are scanned in provider ranking order through narrowing passes: a
// candidate whose name contains the planned title with a matching artist, then
// one sharing at least two title words with a matching artist, then the first
// candidate carrying a URI at all.
func matchTrack(planned models.PlannedTrack, candidates []services.SpotifyTrack) string {
	title := normalizeMatch(planned.Title)
	artist := normalizeMatch(planned.Artist)

	for _, candidate := range candidates {
		if candidate.URI == "" {
			continue
		}
		if strings.Contains(normalizeMatch(candidate.Name), title) && artistMatches(artist, candidate.Artists) {
			return candidate.URI
		}
	}

	titleWords := wordSet(title)
	for _, candidate := range candidates {
		if candidate.URI == "" {
			continue
		}
		if sharedWords(titleWords, wordSet(normalizeMatch(candidate.Name))) >= 2 && artistMatches(artist, candidate.Artists) {
			return candidate.URI
		}
	}

	for _, candidate := range candidates {
		if candidate.URI != "" {
			return candidate.URI
		}
	}

	return ""
}

func artistMatches(wanted string, artists []services.SpotifyArtist) bool {
	for _, artist := range artists {
		if strings.Contains(normalizeMatch(artist.Name), wanted) {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]struct{} {
	words := make(map[string]struct{}, 4)
	for _, word := range strings.Fields(s) {
		words[word] = struct{}{}
	}
	return words
}

func sharedWords(a, b map[string]struct{}) int {
	shared := 0
	for word := range a {
		if _, ok := b[word]; ok {
			shared++
		}
	}
	return shared
}

func normalizeMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
