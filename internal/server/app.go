package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/inference"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/services"
	"github.com/desertthunder/digits/internal/shared"
)

// ShutdownTimeout bounds how long [Serve] waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Deps are the collaborators the web service is assembled from.
//
// Spotify and Sessions are optional; without them the OAuth routes answer 503.
// Recorder is optional; without it predictions are not persisted.
type Deps struct {
	Runner   *inference.Runner
	Recorder PredictionRecorder
	Spotify  services.OAuthService
	Sessions models.Repository[*models.Session]
	Logger   *log.Logger
}

// unavailableHandler answers every route it owns with 503.
type unavailableHandler struct {
	routes []string
	reason string
}

func (h unavailableHandler) Routes() []string { return h.routes }

func (h unavailableHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusServiceUnavailable, h.reason)
}

// NewRouter builds the full web service: middleware stack, prediction, status and Spotify routes.
//
// Middleware order, outermost first: request ID, logging, recovery, CORS, rate limit, body cap.
func NewRouter(cfg shared.ServerConfig, deps Deps) *BasicRouter {
	logger := deps.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	r := NewBasicRouter()
	r.Use(
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigin),
		RateLimitMiddleware(NewLimiter(cfg)),
		MaxBytesMiddleware(cfg.MaxBodyBytes),
	)

	r.Handler(NewStatusHandler(deps.Runner.Models()))
	r.Handler(NewPredictHandler(deps.Runner, deps.Recorder, shared.WithLogger(logger, "handler", "predict")))

	spotify := NewSpotifyHandler(deps.Spotify, deps.Sessions, shared.WithLogger(logger, "handler", "spotify"))
	if deps.Spotify == nil || deps.Sessions == nil {
		logger.Warn("spotify routes disabled", "reason", "missing credentials or session store")
		r.Handler(unavailableHandler{routes: spotify.Routes(), reason: shared.ErrServiceUnavailable.Error()})
	} else {
		r.Handler(spotify)
	}

	return r
}

// Serve runs srv until ctx is cancelled, then shuts it down within [ShutdownTimeout].
func Serve(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
