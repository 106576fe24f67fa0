package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/classifier"
	"github.com/desertthunder/digits/internal/inference"
	"github.com/desertthunder/digits/internal/repositories"
	"github.com/desertthunder/digits/internal/services"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Models, the database and the Spotify client are loaded on first use so that commands
// which need none of them (setup config) work on a fresh checkout.
type Runner struct {
	config      *shared.Config
	configPath  string
	logger      *log.Logger
	output      io.Writer
	httpClient  *http.Client
	inference   *inference.Runner
	spotify     services.OAuthService
	db          *sql.DB
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Inference  *inference.Runner
	Spotify    services.OAuthService
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration.
//
// A nil Config is loaded from the --config flag before any command runs.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		httpClient:  opts.HTTPClient,
		inference:   opts.Inference,
		spotify:     opts.Spotify,
		db:          opts.DB,
		openBrowser: shared.OpenBrowser,
	}
}

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "digits",
		Usage:   "Classify handwritten digits & proxy Spotify playback status",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before:   r.configure,
		After:    r.close,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, predictCommand, batchCommand, tuiCommand, historyCommand, setupCommand, spotifyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the config file named by --config (unless one was injected) and applies the log level.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.config == nil || cmd.IsSet("config") {
		path := cmd.String("config")
		config, err := shared.LoadConfigOrDefault(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.configPath = path
	}

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

func (r *Runner) close(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// classifiers loads the three parameter files on first use.
func (r *Runner) classifiers() (*inference.Runner, error) {
	if r.inference != nil {
		return r.inference, nil
	}

	registry, err := classifier.Load(classifier.PathsFromConfig(r.config.Models), r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	r.inference = inference.NewRunner(registry)
	return r.inference, nil
}

// database opens and migrates the configured database on first use.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	return db, nil
}

func (r *Runner) predictions() (*repositories.PredictionRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewPredictionRepository(db), nil
}

func (r *Runner) sessions() (*repositories.SessionRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewSessionRepository(db), nil
}

// spotifyService builds the Spotify client from config on first use.
func (r *Runner) spotifyService() (services.OAuthService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	cfg := r.config.Credentials.Spotify
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	srv, err := services.NewSpotifyService(cfg, r.httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	r.spotify = srv
	return srv, nil
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

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
