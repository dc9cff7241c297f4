// package tasks orchestrates the bot's long-running operations.
//
// The core abstraction is MixEngine, which drives account linking and the
// prompt-to-playlist pipeline. Operations emit progress updates via channels
// for non-blocking status reporting to the bot layer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/planner"
	"github.com/desertthunder/mixbot/internal/repositories"
	"github.com/desertthunder/mixbot/internal/services"
	"github.com/desertthunder/mixbot/internal/shared"
)

// stateInsertAttempts bounds retries when a generated state token collides
// with a pending one.
const stateInsertAttempts = 5

// RateLimitError reports a denied mix request with the quota that denied it.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		wait := e.RetryAfter.Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
		return fmt.Sprintf("rate limited (%s), retry in %s", e.Reason, wait)
	}
	return fmt.Sprintf("rate limited (%s)", e.Reason)
}

// MixResult is the outcome of a completed mix request.
type MixResult struct {
	Playlist *models.Playlist
	Found    []models.ResolvedTrack
	Missing  []models.PlannedTrack
}

// TokenStore is the credential surface the engine needs: the client's
// persistence operations plus lookup by Telegram account.
// *repositories.TokenRepository satisfies it.
type TokenStore interface {
	services.TokenStore
	LoadByTelegramID(telegramID int64) (*models.SpotifyTokens, error)
}

// SpotifyAPI is the client surface the engine drives.
// *services.SpotifyClient satisfies it.
type SpotifyAPI interface {
	TrackSearcher
	CreatePlaylist(ctx context.Context, userID, name, description string) (*models.Playlist, error)
	AddTracks(ctx context.Context, userID, playlistID string, uris []string) error
	TopArtists(ctx context.Context, userID string, limit int) ([]services.SpotifyArtist, error)
	TopTracks(ctx context.Context, userID string, limit int) ([]services.SpotifyTrack, error)
	RecentlyPlayed(ctx context.Context, userID string, limit int) ([]services.SpotifyTrack, error)
	CurrentlyPlaying(ctx context.Context, userID string) (*models.TrackInfo, error)
	Control(ctx context.Context, userID string, action models.PlaybackAction, allowTransfer bool) error
}

// MixEngine orchestrates account linking, playback commands, and mix
// generation on top of the repositories and the Spotify client.
type MixEngine struct {
	users   *repositories.UserRepository
	tokens  TokenStore
	states  *repositories.AuthStateRepository
	limits  *repositories.RateLimitRepository
	auth    *services.Authenticator
	cache   services.TokenCache
	spotify SpotifyAPI
	planner planner.Planner
	logger  *log.Logger
	now     func() time.Time
}

// MixEngineDeps carries the engine's collaborators.
type MixEngineDeps struct {
	Users   *repositories.UserRepository
	Tokens  TokenStore
	States  *repositories.AuthStateRepository
	Limits  *repositories.RateLimitRepository
	Auth    *services.Authenticator
	Cache   services.TokenCache
	Spotify SpotifyAPI
	Planner planner.Planner
	Logger  *log.Logger
}

// NewMixEngine creates a [MixEngine] from its dependencies.
func NewMixEngine(deps MixEngineDeps) *MixEngine {
	logger := deps.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &MixEngine{
		users:   deps.Users,
		tokens:  deps.Tokens,
		states:  deps.States,
		limits:  deps.Limits,
		auth:    deps.Auth,
		cache:   deps.Cache,
		spotify: deps.Spotify,
		planner: deps.Planner,
		logger:  logger,
		now:     time.Now,
	}
}

// StartAuthorization begins the account linking flow for a Telegram profile
// and returns the consent URL to send to the user.
func (e *MixEngine) StartAuthorization(profile models.UserProfile) (string, error) {
	user, err := e.users.Ensure(profile)
	if err != nil {
		return "", err
	}

	verifier := e.auth.GenerateVerifier()

	for attempt := 0; attempt < stateInsertAttempts; attempt++ {
		state := e.auth.GenerateState()
		err := e.states.Insert(&models.AuthState{State: state, CodeVerifier: verifier, UserID: user.ID})
		if errors.Is(err, shared.ErrStateCollision) {
			continue
		}
		if err != nil {
			return "", err
		}
		return e.auth.AuthorizationURL(state, verifier), nil
	}

	return "", shared.ErrStateCollision
}

// CompleteAuthorization finishes the linking flow from the OAuth callback,
// exchanging the code and persisting credentials for the bound user.
func (e *MixEngine) CompleteAuthorization(ctx context.Context, state, code string) (*models.User, error) {
	record, err := e.states.Consume(state)
	if err != nil {
		return nil, err
	}
	if record.UserID == "" {
		return nil, shared.ErrStateUnbound
	}

	tokens, err := e.auth.Exchange(ctx, code, record.CodeVerifier)
	if err != nil {
		return nil, err
	}
	tokens.UserID = record.UserID

	if err := e.tokens.Save(tokens); err != nil {
		return nil, err
	}
	e.cache.Put(tokens)

	user, err := e.users.Get(record.UserID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("linked spotify account", "user", user.ID)
	return user, nil
}

// linkedUser resolves a Telegram account to a user who has completed account
// linking. A known profile without stored credentials is treated the same as
// an unknown one.
func (e *MixEngine) linkedUser(telegramID int64) (*models.User, error) {
	user, err := e.users.GetByTelegramID(telegramID)
	if err != nil {
		return nil, shared.ErrNotAuthorized
	}
	if _, err := e.tokens.LoadByTelegramID(telegramID); err != nil {
		return nil, shared.ErrNotAuthorized
	}
	return user, nil
}

// RequestMix runs the full prompt-to-playlist pipeline for a Telegram user.
//
// The request is admitted through the rate limiter first; the in-flight
// guard it arms is cleared on every exit path.
func (e *MixEngine) RequestMix(ctx context.Context, prog chan<- ProgressUpdate, telegramID int64, prompt string) (*MixResult, error) {
	user, err := e.linkedUser(telegramID)
	if err != nil {
		return nil, err
	}

	admitted, err := e.limits.Admit(user.ID, e.now())
	if err != nil {
		return nil, err
	}
	if !admitted.Allowed {
		return nil, &RateLimitError{Reason: admitted.Reason, RetryAfter: admitted.RetryAfter}
	}
	defer func() {
		if err := e.limits.ClearProcessing(user.ID); err != nil {
			e.logger.Error("failed to clear processing guard", "user", user.ID, "error", err)
		}
	}()

	e.sendProgress(prog, gatheringTasteUpdate())
	listener := e.BuildListenerContext(ctx, user.ID)

	e.sendProgress(prog, planningTracksUpdate())
	plan, err := e.planner.PlanPlaylist(ctx, prompt, listener)
	if err != nil {
		return nil, err
	}

	resolved, err := e.ResolveTracks(ctx, prog, user.ID, plan.Tracks)
	if err != nil {
		return nil, err
	}
	if len(resolved.Found) == 0 {
		return nil, fmt.Errorf("%w: none of the planned tracks were found", shared.ErrEmptyPlan)
	}

	name := services.PlaylistName(prompt)
	e.sendProgress(prog, creatingPlaylistUpdate(name))
	playlist, err := e.spotify.CreatePlaylist(ctx, user.ID, name, services.PlaylistDescription(prompt))
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(resolved.Found))
	for _, track := range resolved.Found {
		uris = append(uris, track.URI)
	}

	e.sendProgress(prog, addingTracksUpdate(len(uris)))
	if err := e.spotify.AddTracks(ctx, user.ID, playlist.ID, uris); err != nil {
		return nil, err
	}

	e.logger.Info("mix created",
		"user", user.ID,
		"playlist", playlist.ID,
		"found", len(resolved.Found),
		"missing", len(resolved.Missing))

	return &MixResult{Playlist: playlist, Found: resolved.Found, Missing: resolved.Missing}, nil
}

// FindTrack resolves a free-text description of a song, such as a lyric
// fragment, to a single catalog track. A track the model names but the
// catalog cannot find returns the planned track with an empty URI.
func (e *MixEngine) FindTrack(ctx context.Context, telegramID int64, description string) (*models.ResolvedTrack, error) {
	user, err := e.linkedUser(telegramID)
	if err != nil {
		return nil, err
	}
	if e.planner == nil {
		return nil, fmt.Errorf("%w: planner not configured", shared.ErrMissingCredentials)
	}

	planned, err := e.planner.FindTrack(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("identify track: %w", err)
	}

	candidates, err := e.spotify.SearchTrack(ctx, user.ID, planner.SearchQuery(*planned))
	if err != nil {
		return nil, fmt.Errorf("search %q by %q: %w", planned.Title, planned.Artist, err)
	}

	return &models.ResolvedTrack{Planned: *planned, URI: matchTrack(*planned, candidates)}, nil
}

// NowPlaying reports the user's current track, or nil when nothing plays.
func (e *MixEngine) NowPlaying(ctx context.Context, telegramID int64) (*models.TrackInfo, error) {
	user, err := e.linkedUser(telegramID)
	if err != nil {
		return nil, err
	}
	return e.spotify.CurrentlyPlaying(ctx, user.ID)
}

// ControlPlayback dispatches a playback command for the user. allowTransfer
// confirms waking an inactive device.
func (e *MixEngine) ControlPlayback(ctx context.Context, telegramID int64, action models.PlaybackAction, allowTransfer bool) error {
	user, err := e.linkedUser(telegramID)
	if err != nil {
		return err
	}
	return e.spotify.Control(ctx, user.ID, action, allowTransfer)
}
