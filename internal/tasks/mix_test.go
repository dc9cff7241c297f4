package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/planner"
	"github.com/desertthunder/mixbot/internal/repositories"
	"github.com/desertthunder/mixbot/internal/services"
	"github.com/desertthunder/mixbot/internal/shared"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// fakeSpotify is an in-memory SpotifyAPI double.
type fakeSpotify struct {
	mu       sync.Mutex
	searchFn func(query string) ([]services.SpotifyTrack, error)
	searches []string
	created  []models.Playlist
	added    map[string][]string
	playing  *models.TrackInfo
	controls []models.PlaybackAction
}

func newFakeSpotify() *fakeSpotify {
	return &fakeSpotify{added: make(map[string][]string)}
}

func (f *fakeSpotify) SearchTrack(ctx context.Context, userID, query string) ([]services.SpotifyTrack, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(query)
}

func (f *fakeSpotify) CreatePlaylist(ctx context.Context, userID, name, description string) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	playlist := models.Playlist{ID: fmt.Sprintf("pl-%d", len(f.created)+1), Name: name, Description: description}
	f.created = append(f.created, playlist)
	return &playlist, nil
}

func (f *fakeSpotify) AddTracks(ctx context.Context, userID, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added[playlistID] = append(f.added[playlistID], uris...)
	return nil
}

func (f *fakeSpotify) TopArtists(ctx context.Context, userID string, limit int) ([]services.SpotifyArtist, error) {
	return []services.SpotifyArtist{{Name: "Daft Punk"}}, nil
}

func (f *fakeSpotify) TopTracks(ctx context.Context, userID string, limit int) ([]services.SpotifyTrack, error) {
	return nil, errors.New("unavailable")
}

func (f *fakeSpotify) RecentlyPlayed(ctx context.Context, userID string, limit int) ([]services.SpotifyTrack, error) {
	return []services.SpotifyTrack{{Name: "Nightcall", Artists: []services.SpotifyArtist{{Name: "Kavinsky"}}}}, nil
}

func (f *fakeSpotify) CurrentlyPlaying(ctx context.Context, userID string) (*models.TrackInfo, error) {
	return f.playing, nil
}

func (f *fakeSpotify) Control(ctx context.Context, userID string, action models.PlaybackAction, allowTransfer bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, action)
	return nil
}

// fakePlanner returns a fixed plan and a fixed single-track answer.
type fakePlanner struct {
	plan  *models.PlaylistPlan
	found *models.PlannedTrack
	err   error
}

func (f *fakePlanner) PlanPlaylist(ctx context.Context, prompt string, listener planner.ListenerContext) (*models.PlaylistPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func (f *fakePlanner) FindTrack(ctx context.Context, description string) (*models.PlannedTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.found == nil {
		return nil, shared.ErrEmptyPlan
	}
	return f.found, nil
}

type engineFixture struct {
	engine  *MixEngine
	db      *sql.DB
	user    *models.User
	spotify *fakeSpotify
	limits  *repositories.RateLimitRepository
}

func setupEngine(t *testing.T, spotify *fakeSpotify, plan planner.Planner) *engineFixture {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	users := repositories.NewUserRepository(db)
	user, err := users.Ensure(models.UserProfile{TelegramID: 4242, Username: "listener"})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	auth, err := services.NewAuthenticator(shared.SpotifyConfig{
		ClientID:    "test_client_id",
		RedirectURI: "http://localhost:3000/spotify/callback",
		Scopes:      "playlist-modify-private",
	})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	tokens := repositories.NewTokenRepository(db)
	if err := tokens.Save(&models.SpotifyTokens{
		UserID:       user.ID,
		AccessToken:  "seed-access",
		RefreshToken: "seed-refresh",
		Scope:        "playlist-modify-private",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("failed to seed tokens: %v", err)
	}

	limits := repositories.NewRateLimitRepository(db, 20, 0, time.Minute)
	engine := NewMixEngine(MixEngineDeps{
		Users:   users,
		Tokens:  tokens,
		States:  repositories.NewAuthStateRepository(db),
		Limits:  limits,
		Auth:    auth,
		Cache:   services.NewMemoryTokenCache(),
		Spotify: spotify,
		Planner: plan,
	})

	return &engineFixture{engine: engine, db: db, user: user, spotify: spotify, limits: limits}
}

func TestStartAuthorization(t *testing.T) {
	fx := setupEngine(t, newFakeSpotify(), &fakePlanner{})

	authURL, err := fx.engine.StartAuthorization(models.UserProfile{TelegramID: 4242, Username: "listener"})
	if err != nil {
		t.Fatalf("start authorization failed: %v", err)
	}

	if !strings.Contains(authURL, "accounts.spotify.com/authorize") {
		t.Errorf("unexpected consent URL: %s", authURL)
	}
	if !strings.Contains(authURL, "state=") || !strings.Contains(authURL, "code_challenge=") {
		t.Errorf("consent URL missing state or challenge: %s", authURL)
	}
}

func TestCompleteAuthorization(t *testing.T) {
	t.Run("unknown state", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{})

		_, err := fx.engine.CompleteAuthorization(context.Background(), "nope", "code")
		if !errors.Is(err, shared.ErrStateNotFound) {
			t.Errorf("expected ErrStateNotFound, got %v", err)
		}
	})

	t.Run("state without a bound user", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{})

		states := repositories.NewAuthStateRepository(fx.db)
		if err := states.Insert(&models.AuthState{State: "orphan", CodeVerifier: "v"}); err != nil {
			t.Fatalf("failed to insert state: %v", err)
		}

		_, err := fx.engine.CompleteAuthorization(context.Background(), "orphan", "code")
		if !errors.Is(err, shared.ErrStateUnbound) {
			t.Errorf("expected ErrStateUnbound, got %v", err)
		}
	})
}

func TestRequestMix(t *testing.T) {
	plan := &models.PlaylistPlan{Tracks: []models.PlannedTrack{
		{Title: "One More Time", Artist: "Daft Punk"},
		{Title: "Nightcall", Artist: "Kavinsky"},
		{Title: "Ghost Song", Artist: "Nobody Real"},
	}}

	searchFn := func(query string) ([]services.SpotifyTrack, error) {
		switch {
		case strings.Contains(query, "One More Time"):
			return []services.SpotifyTrack{{
				Name:    "One More Time",
				URI:     "spotify:track:omt",
				Artists: []services.SpotifyArtist{{Name: "Daft Punk"}},
			}}, nil
		case strings.Contains(query, "Nightcall"):
			return []services.SpotifyTrack{{
				Name:    "Nightcall",
				URI:     "spotify:track:nc",
				Artists: []services.SpotifyArtist{{Name: "Kavinsky"}},
			}}, nil
		default:
			return nil, nil
		}
	}

	t.Run("builds a playlist from the plan", func(t *testing.T) {
		spotify := newFakeSpotify()
		spotify.searchFn = searchFn
		fx := setupEngine(t, spotify, &fakePlanner{plan: plan})

		prog := make(chan ProgressUpdate, 32)
		result, err := fx.engine.RequestMix(context.Background(), prog, 4242, "french house energy")
		if err != nil {
			t.Fatalf("request mix failed: %v", err)
		}

		if result.Playlist == nil || result.Playlist.Name != "french house energy" {
			t.Errorf("unexpected playlist: %+v", result.Playlist)
		}
		if len(result.Found) != 2 {
			t.Fatalf("expected 2 found tracks, got %d", len(result.Found))
		}
		if result.Found[0].URI != "spotify:track:omt" || result.Found[1].URI != "spotify:track:nc" {
			t.Errorf("found tracks out of plan order: %+v", result.Found)
		}
		if len(result.Missing) != 1 || result.Missing[0].Title != "Ghost Song" {
			t.Errorf("unexpected missing list: %+v", result.Missing)
		}
		if got := spotify.added[result.Playlist.ID]; len(got) != 2 || got[0] != "spotify:track:omt" {
			t.Errorf("unexpected playlist contents: %v", got)
		}

		// the in-flight guard must be gone
		next, err := fx.engine.RequestMix(context.Background(), nil, 4242, "another one")
		if err != nil {
			t.Fatalf("second mix failed: %v", err)
		}
		if next == nil {
			t.Error("expected a second mix result")
		}
	})

	t.Run("unknown telegram user", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{plan: plan})

		_, err := fx.engine.RequestMix(context.Background(), nil, 999, "anything")
		if !errors.Is(err, shared.ErrNotAuthorized) {
			t.Errorf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("known user without linked credentials", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{plan: plan})

		if err := repositories.NewTokenRepository(fx.db).Delete(fx.user.ID); err != nil {
			t.Fatalf("failed to unlink user: %v", err)
		}

		_, err := fx.engine.RequestMix(context.Background(), nil, 4242, "anything")
		if !errors.Is(err, shared.ErrNotAuthorized) {
			t.Errorf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("denied while a mix is in flight", func(t *testing.T) {
		spotify := newFakeSpotify()
		spotify.searchFn = searchFn
		fx := setupEngine(t, spotify, &fakePlanner{plan: plan})

		if err := fx.limits.MarkProcessing(fx.db, fx.user.ID, time.Now()); err != nil {
			t.Fatalf("failed to arm guard: %v", err)
		}

		_, err := fx.engine.RequestMix(context.Background(), nil, 4242, "anything")

		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rateErr.Reason != repositories.DenyProcessing {
			t.Errorf("expected processing denial, got %q", rateErr.Reason)
		}
	})

	t.Run("planner failure still clears the guard", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{err: errors.New("model offline")})

		if _, err := fx.engine.RequestMix(context.Background(), nil, 4242, "anything"); err == nil {
			t.Fatal("expected planner error")
		}

		result, err := fx.limits.Admit(fx.user.ID, time.Now())
		if err != nil {
			t.Fatalf("failed to re-check limits: %v", err)
		}
		if !result.Allowed {
			t.Errorf("guard should be cleared after failure, denied for %q", result.Reason)
		}
	})

	t.Run("no resolvable tracks", func(t *testing.T) {
		spotify := newFakeSpotify() // every search returns nothing
		fx := setupEngine(t, spotify, &fakePlanner{plan: plan})

		_, err := fx.engine.RequestMix(context.Background(), nil, 4242, "anything")
		if !errors.Is(err, shared.ErrEmptyPlan) {
			t.Errorf("expected ErrEmptyPlan, got %v", err)
		}
		if len(spotify.created) != 0 {
			t.Error("no playlist should be created without tracks")
		}
	})
}

func TestRateLimitErrorMessage(t *testing.T) {
	t.Run("sub-second wait reads as one second", func(t *testing.T) {
		err := &RateLimitError{Reason: repositories.DenyCooldown, RetryAfter: 300 * time.Millisecond}
		if !strings.Contains(err.Error(), "retry in 1s") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("longer waits round to whole seconds", func(t *testing.T) {
		err := &RateLimitError{Reason: repositories.DenyCooldown, RetryAfter: 19500 * time.Millisecond}
		if !strings.Contains(err.Error(), "retry in 20s") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("no wait omits the retry hint", func(t *testing.T) {
		err := &RateLimitError{Reason: repositories.DenyDailyLimit}
		if strings.Contains(err.Error(), "retry in") {
			t.Errorf("daily limit message should not promise a retry window: %s", err.Error())
		}
	})
}

func TestNowPlayingAndControl(t *testing.T) {
	spotify := newFakeSpotify()
	spotify.playing = &models.TrackInfo{Title: "Nightcall", IsPlaying: true}
	fx := setupEngine(t, spotify, &fakePlanner{})

	info, err := fx.engine.NowPlaying(context.Background(), 4242)
	if err != nil {
		t.Fatalf("now playing failed: %v", err)
	}
	if info.Title != "Nightcall" {
		t.Errorf("unexpected track: %+v", info)
	}

	if err := fx.engine.ControlPlayback(context.Background(), 4242, models.ActionPause, false); err != nil {
		t.Fatalf("control failed: %v", err)
	}
	if len(spotify.controls) != 1 || spotify.controls[0] != models.ActionPause {
		t.Errorf("unexpected control log: %v", spotify.controls)
	}

	if err := fx.engine.ControlPlayback(context.Background(), 999, models.ActionPlay, false); !errors.Is(err, shared.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized for unknown user, got %v", err)
	}
}

func TestFindTrack(t *testing.T) {
	t.Run("catalog match", func(t *testing.T) {
		spotify := newFakeSpotify()
		spotify.searchFn = func(query string) ([]services.SpotifyTrack, error) {
			return []services.SpotifyTrack{{
				Name:    "Nightcall",
				Artists: []services.SpotifyArtist{{Name: "Kavinsky"}},
				URI:     "spotify:track:nc",
			}}, nil
		}
		fx := setupEngine(t, spotify, &fakePlanner{
			found: &models.PlannedTrack{Title: "Nightcall", Artist: "Kavinsky"},
		})

		track, err := fx.engine.FindTrack(context.Background(), 4242, "that synthwave song from Drive")
		if err != nil {
			t.Fatalf("find track failed: %v", err)
		}
		if track.URI != "spotify:track:nc" {
			t.Errorf("expected catalog URI, got %q", track.URI)
		}
		if len(spotify.searches) != 1 || !strings.Contains(spotify.searches[0], "Nightcall") {
			t.Errorf("unexpected search log: %v", spotify.searches)
		}
	})

	t.Run("identified but not in catalog", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{
			found: &models.PlannedTrack{Title: "Obscure B-Side", Artist: "Nobody"},
		})

		track, err := fx.engine.FindTrack(context.Background(), 4242, "a song nobody knows")
		if err != nil {
			t.Fatalf("find track failed: %v", err)
		}
		if track.URI != "" {
			t.Errorf("expected empty URI, got %q", track.URI)
		}
		if track.Planned.Title != "Obscure B-Side" {
			t.Errorf("unexpected planned track: %+v", track.Planned)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		fx := setupEngine(t, newFakeSpotify(), &fakePlanner{})

		if _, err := fx.engine.FindTrack(context.Background(), 999, "anything"); !errors.Is(err, shared.ErrNotAuthorized) {
			t.Errorf("expected ErrNotAuthorized, got %v", err)
		}
	})
}

func TestBuildListenerContext(t *testing.T) {
	fx := setupEngine(t, newFakeSpotify(), &fakePlanner{})

	listener := fx.engine.BuildListenerContext(context.Background(), fx.user.ID)

	if len(listener.TopArtists) != 1 || listener.TopArtists[0] != "Daft Punk" {
		t.Errorf("unexpected top artists: %v", listener.TopArtists)
	}
	if len(listener.TopTracks) != 0 {
		t.Errorf("failed fetch should leave top tracks empty, got %v", listener.TopTracks)
	}
	if len(listener.RecentTracks) != 1 || listener.RecentTracks[0] != "Kavinsky - Nightcall" {
		t.Errorf("unexpected recent tracks: %v", listener.RecentTracks)
	}
}
