// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, mixCommand, findCommand, nowCommand, playbackCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// setupCommand handles config and database initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a config file and initialize the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// serveCommand runs the account linking web surface.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the OAuth callback server",
		Action: r.Serve,
	}
}

// authCommand starts a Spotify linking flow from the terminal.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Link a Spotify account for a Telegram user",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "telegram-id",
				Usage:    "Telegram account id to link",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "Telegram username",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the consent page in a browser",
				Value: true,
			},
		},
		Action: r.Auth,
	}
}

// mixCommand runs the playlist pipeline once, for debugging.
func mixCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mix",
		Usage: "Generate a playlist from a listening prompt",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "prompt",
			},
		},
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "telegram-id",
				Usage:    "Telegram account id of the listener",
				Required: true,
			},
		},
		Action: r.Mix,
	}
}

// findCommand identifies a single track from a description.
func findCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "Identify a track from a lyric or description",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "description",
			},
		},
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "telegram-id",
				Usage:    "Telegram account id of the listener",
				Required: true,
			},
		},
		Action: r.Find,
	}
}

// nowCommand shows the current track.
func nowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Show the currently playing track",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "telegram-id",
				Usage:    "Telegram account id of the listener",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Now,
	}
}

// playbackCommand dispatches play/pause/next/previous.
func playbackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playback",
		Usage: "Control playback (play, pause, next, previous)",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "action",
			},
		},
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "telegram-id",
				Usage:    "Telegram account id of the listener",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "transfer",
				Usage: "Allow waking an inactive device",
			},
		},
		Action: r.Playback,
	}
}
