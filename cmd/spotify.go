package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/server"
	"github.com/desertthunder/digits/internal/services"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// SpotifyLogin performs the OAuth2 authorization-code flow for Spotify and stores the tokens as a session.
//
// Starts a local HTTP server on the redirect URI's address, opens the browser for user authorization,
// and exchanges the returned code for tokens.
func (r *Runner) SpotifyLogin(ctx context.Context, cmd *cli.Command) error {
	srv, err := r.spotifyService()
	if err != nil {
		return err
	}

	sessions, err := r.sessions()
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, srv, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	session := models.NewSession()
	session.SetToken(token)
	if err := sessions.Create(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Session %s saved to %s\n\n", session.ID(), r.config.Database.Path)
	r.writePlain("You can now use: digits spotify status --session %s\n", session.ID())
	return nil
}

// SpotifyStatus prints what a stored session is currently playing, refreshing its token when expired.
func (r *Runner) SpotifyStatus(ctx context.Context, cmd *cli.Command) error {
	srv, err := r.spotifyService()
	if err != nil {
		return err
	}

	sessions, err := r.sessions()
	if err != nil {
		return err
	}

	session, err := sessions.Get(cmd.String("session"))
	if err != nil {
		return err
	}
	if !session.LoggedIn() {
		return fmt.Errorf("%w: run 'digits spotify login' first", shared.ErrNotAuthenticated)
	}

	if session.Expired(time.Now()) {
		r.logger.Info("access token expired, refreshing", "session", session.ID())
		tok, err := srv.Refresh(ctx, session.RefreshToken)
		if err != nil {
			return err
		}
		session.SetToken(tok)
		if err := sessions.Update(session); err != nil {
			return fmt.Errorf("failed to save refreshed session: %w", err)
		}
	}

	playing, err := srv.CurrentlyPlaying(ctx, session.Token())
	if err != nil {
		return err
	}
	return r.writeJSON(playing, cmd.Bool("pretty"))
}

// SpotifyPurge deletes soft-deleted sessions and sessions idle for longer than --older-than.
func (r *Runner) SpotifyPurge(ctx context.Context, cmd *cli.Command) error {
	sessions, err := r.sessions()
	if err != nil {
		return err
	}

	olderThan := cmd.Duration("older-than")
	n, err := sessions.Purge(time.Now().Add(-olderThan))
	if err != nil {
		return err
	}

	r.logger.Info("purged sessions", "count", n, "older_than", olderThan)
	return r.writePlain("✓ Purged %d sessions\n", n)
}

// doOAuth serves the redirect URI until one callback arrives, the timeout passes or ctx is done.
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, timeout time.Duration) (*oauth2.Token, error) {
	state, err := shared.GenerateState(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	addr, err := callbackAddr(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return nil, err
	}

	oauthHandler := server.NewOAuthHandler(oauthSrv, state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for authorization at %v", addr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := oauthSrv.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrNotAuthenticated, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := result.Error(); err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrTokenExchange)
	}

	return result.Token, nil
}

// callbackAddr returns the host:port the redirect URI points at.
func callbackAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: redirect_uri %q is not an absolute URL", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443"), nil
	}
	return net.JoinHostPort(u.Hostname(), "80"), nil
}
