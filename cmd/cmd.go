// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (json, csv, markdown, text, table)",
		Value:   value,
	}
}

// serveCommand hosts the web service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve /predict and the Spotify routes over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// predictCommand classifies a single image
func predictCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Classify an image file with every model",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "image",
			},
		},
		Flags: []cli.Flag{
			formatFlag("json"),
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the result to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Store the top picks in the prediction history",
			},
		},
		Action: r.Predict,
	}
}

// batchCommand classifies files and directories with a worker pool
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Classify every image under the given files and directories",
		ArgsUsage: "<paths...>",
		Flags: []cli.Flag{
			formatFlag("csv"),
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Report directory (default: digits_batch_{epoch})",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent workers (max 16)",
				Value:   4,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Images per second, 0 for unlimited",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Store the top picks in the prediction history",
			},
		},
		Action: r.Batch,
	}
}

// tuiCommand launches the interactive viewer
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tui",
		Usage:     "Browse predictions for images in an interactive terminal UI",
		ArgsUsage: "<paths...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the UI owns the terminal",
				Value: "./tmp/digits-tui.log",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Report directory for batch runs started from the UI",
			},
		},
		Action: r.TUI,
	}
}

// historyCommand reads the prediction audit trail
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded predictions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of records to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Only show records of one model (CNN, MLP, LR)",
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Only show records of one request",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only show records newer than this duration ago (e.g. 24h)",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Show per-model counts and mean confidence instead",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.History,
	}
}

// setupCommand initializes local state
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write config.toml from the bundled template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify login & playback status",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify in the browser and store a session",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser redirect",
						Value: 2 * time.Minute,
					},
				},
				Action: r.SpotifyLogin,
			},
			{
				Name:  "status",
				Usage: "Show what a stored session is currently playing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Session ID printed by spotify login",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
					},
				},
				Action: r.SpotifyStatus,
			},
			{
				Name:  "purge",
				Usage: "Delete sessions idle for longer than --older-than",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Idle duration after which sessions are deleted",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: r.SpotifyPurge,
			},
		},
	}
}
