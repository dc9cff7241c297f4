package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/repositories"
	"github.com/desertthunder/mixbot/internal/server"
	"github.com/desertthunder/mixbot/internal/services"
	"github.com/desertthunder/mixbot/internal/shared"
	"github.com/desertthunder/mixbot/internal/tasks"
	"github.com/urfave/cli/v3"
)

// authStateMaxAge is how long a pending authorization state stays valid.
const authStateMaxAge = 10 * time.Minute

// Setup creates a config file and initializes the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		r.logger.Warn("config file not created", "path", path, "error", err)
	} else {
		r.writePlainln("Created %s", path)
	}

	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	r.writePlainln("Database ready at %s", r.config.Database.Path)
	return nil
}

// Serve runs the linking web surface until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(server.NewAuthHandler(r.engine, r.logger))
	router.Handler(server.NewHealthHandler(r.db))

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go r.cleanupAuthStates(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	r.logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// cleanupAuthStates periodically drops expired pending authorizations.
func (r *Runner) cleanupAuthStates(ctx context.Context) {
	states := repositories.NewAuthStateRepository(r.db)
	ticker := time.NewTicker(authStateMaxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := states.DeleteExpired(authStateMaxAge)
			if err != nil {
				r.logger.Error("auth state cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				r.logger.Debug("cleared expired auth states", "count", deleted)
			}
		}
	}
}

// Auth starts a linking flow for a Telegram user and opens the consent page.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	profile := models.UserProfile{
		TelegramID: cmd.Int64("telegram-id"),
		Username:   cmd.String("username"),
	}
	if profile.TelegramID == 0 {
		return fmt.Errorf("%w: telegram-id", shared.ErrMissingArgument)
	}

	authURL, err := r.engine.StartAuthorization(profile)
	if err != nil {
		return err
	}

	r.writePlainln("Open this URL to link your Spotify account:\n%s", authURL)
	if cmd.Bool("open") {
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("could not open browser", "error", err)
		}
	}
	return nil
}

// Mix runs the prompt-to-playlist pipeline once and prints the result.
func (r *Runner) Mix(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	if r.planner == nil {
		return fmt.Errorf("%w: anthropic api key", shared.ErrMissingCredentials)
	}

	telegramID := cmd.Int64("telegram-id")
	prompt := cmd.StringArg("prompt")
	if prompt == "" {
		return fmt.Errorf("%w: prompt", shared.ErrMissingArgument)
	}

	prog := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range prog {
			r.logger.Info(update.Message, "phase", update.Phase.String())
		}
	}()

	result, err := r.engine.RequestMix(ctx, prog, telegramID, prompt)
	close(prog)
	<-done

	var limited *tasks.RateLimitError
	if errors.As(err, &limited) {
		return r.writePlainln("Not right now: %s.", limited.Error())
	}
	if err != nil {
		return err
	}

	r.writePlainln("Created %q with %d tracks (%d not found)",
		result.Playlist.Name, len(result.Found), len(result.Missing))
	if result.Playlist.URL != "" {
		r.writePlainln("%s", result.Playlist.URL)
	}
	for _, missing := range result.Missing {
		r.writePlainln("  not found: %s - %s", missing.Artist, missing.Title)
	}
	return nil
}

// Find identifies a single track from a free-text description and prints it.
func (r *Runner) Find(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	if r.planner == nil {
		return fmt.Errorf("%w: anthropic api key", shared.ErrMissingCredentials)
	}

	description := cmd.StringArg("description")
	if description == "" {
		return fmt.Errorf("%w: description", shared.ErrMissingArgument)
	}

	track, err := r.engine.FindTrack(ctx, cmd.Int64("telegram-id"), description)
	if err != nil {
		return err
	}

	if track.URI == "" {
		return r.writePlainln("Sounds like %s - %s, but it is not in the catalog.",
			track.Planned.Artist, track.Planned.Title)
	}
	return r.writePlainln("%s - %s (%s)", track.Planned.Artist, track.Planned.Title, track.URI)
}

// Now prints the user's currently playing track.
func (r *Runner) Now(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	info, err := r.engine.NowPlaying(ctx, cmd.Int64("telegram-id"))
	if err != nil {
		return err
	}
	if info == nil {
		return r.writePlainln("Nothing is playing.")
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}

	status := "paused"
	if info.IsPlaying {
		status = "playing"
	}
	return r.writePlainln("%s: %s by %s (%s)", status, info.Title, joinArtists(info.Artists), info.Album)
}

// Playback dispatches a playback command.
func (r *Runner) Playback(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(); err != nil {
		return err
	}
	defer r.close()

	action := models.PlaybackAction(cmd.StringArg("action"))
	err := r.engine.ControlPlayback(ctx, cmd.Int64("telegram-id"), action, cmd.Bool("transfer"))

	var confirm *services.TransferConfirmError
	if errors.As(err, &confirm) {
		return r.writePlainln("No active device. Re-run with --transfer to wake %q (%s).",
			confirm.Device.Name, confirm.Device.Type)
	}
	if err != nil {
		return err
	}

	return r.writePlainln("OK")
}

func joinArtists(artists []string) string {
	switch len(artists) {
	case 0:
		return "unknown"
	case 1:
		return artists[0]
	default:
		result := artists[0]
		for _, artist := range artists[1:] {
			result += ", " + artist
		}
		return result
	}
}
