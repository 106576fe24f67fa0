package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/digits/internal/inference"
	"github.com/desertthunder/digits/internal/repositories"
	"github.com/desertthunder/digits/internal/server"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve loads the models and runs the web service until SIGINT or SIGTERM.
//
// Parameter files that fail to load abort the process. Missing Spotify credentials only disable the OAuth routes.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	runner, err := r.classifiers()
	if err != nil {
		r.logger.Fatal("cannot serve without model parameters", "error", err)
	}

	handler, err := r.router(cfg, runner)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, srv, r.logger)
}

// router wires the repositories and, when credentials are configured, the Spotify client into the HTTP router.
func (r *Runner) router(cfg shared.ServerConfig, runner *inference.Runner) (*server.BasicRouter, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	deps := server.Deps{
		Runner:   runner,
		Recorder: repositories.NewPredictionRepository(db),
		Sessions: repositories.NewSessionRepository(db),
		Logger:   r.logger,
	}

	if spotify, err := r.spotifyService(); err != nil {
		r.logger.Warn("spotify disabled", "error", err)
	} else {
		deps.Spotify = spotify
	}

	return server.NewRouter(cfg, deps), nil
}
