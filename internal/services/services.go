// package services defines clients for the external HTTP APIs the server talks to
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuthService is an OAuth2 authorization-code provider that can also report
// the user's profile and what they are currently listening to.
type OAuthService interface {
	// Name returns the provider name (e.g., "Spotify")
	Name() string

	// AuthURL returns the authorization page URL carrying state.
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh obtains a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// UserProfile returns the provider's raw profile document.
	UserProfile(ctx context.Context, tok *oauth2.Token) (json.RawMessage, error)

	// CurrentlyPlaying reports the user's playback state.
	CurrentlyPlaying(ctx context.Context, tok *oauth2.Token) (*NowPlaying, error)
}

// NowPlaying is the user's playback state. Track is nil when nothing is playing.
type NowPlaying struct {
	Online bool          `json:"online"`
	Track  *PlayingTrack `json:"track"`
}

// PlayingTrack summarizes the item being played.
type PlayingTrack struct {
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
	URL     string   `json:"url"`
	Image   *string  `json:"image"`
}

// StatusError carries the HTTP status an upstream call failed with.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.Err, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode returns the upstream status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
