package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixbot/internal/planner"
	"github.com/desertthunder/mixbot/internal/repositories"
	"github.com/desertthunder/mixbot/internal/services"
	"github.com/desertthunder/mixbot/internal/shared"
	"github.com/desertthunder/mixbot/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	logger  *log.Logger
	output  io.Writer
	db      *sql.DB
	engine  *tasks.MixEngine
	planner planner.Planner
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

// bootstrap opens the database, applies migrations, and assembles the engine.
// Commands that only touch configuration skip it.
func (r *Runner) bootstrap() error {
	if r.engine != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	auth, err := services.NewAuthenticator(r.config.Credentials.Spotify)
	if err != nil {
		db.Close()
		return err
	}

	tokenRepo := repositories.NewTokenRepository(db)
	cache := services.NewMemoryTokenCache()
	client := services.NewSpotifyClient(auth, tokenRepo, cache)

	if r.config.Credentials.Anthropic.APIKey != "" {
		plannerClient, err := planner.NewClient(planner.ClientConfig{
			APIKey: r.config.Credentials.Anthropic.APIKey,
			Model:  r.config.Credentials.Anthropic.Model,
		})
		if err != nil {
			db.Close()
			return err
		}
		r.planner = plannerClient
	}

	limits := r.config.Limits
	r.db = db
	r.engine = tasks.NewMixEngine(tasks.MixEngineDeps{
		Users:  repositories.NewUserRepository(db),
		Tokens: tokenRepo,
		States: repositories.NewAuthStateRepository(db),
		Limits: repositories.NewRateLimitRepository(db,
			limits.DailyLimit,
			secondsDuration(limits.CooldownSeconds),
			secondsDuration(limits.ProcessingTTLSeconds)),
		Auth:    auth,
		Cache:   cache,
		Spotify: client,
		Planner: r.planner,
		Logger:  r.logger,
	})

	return nil
}

// close releases resources opened by bootstrap.
func (r *Runner) close() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
		r.engine = nil
	}
}

func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
