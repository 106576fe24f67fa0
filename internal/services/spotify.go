// Spotify implementation of [OAuthService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/digits/internal/shared"
	"golang.org/x/oauth2"
)

// SpotifyScopes are the permissions requested at login.
var SpotifyScopes = []string{
	"user-read-playback-state",
	"user-read-currently-playing",
	"user-read-recently-played",
	"user-read-email",
	"user-read-private",
}

// thumbnailHeight selects the album image reported for the current track.
const thumbnailHeight = 64

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

// SpotifyCurrentlyPlaying is the body of GET /me/player/currently-playing.
//
// Item is nil for ads and other non-track content.
type SpotifyCurrentlyPlaying struct {
	IsPlaying  bool          `json:"is_playing"`
	ProgressMS int           `json:"progress_ms"`
	Item       *SpotifyTrack `json:"item"`
}

// SpotifyService implements [OAuthService] for the Spotify Accounts service and Web API.
type SpotifyService struct {
	config     *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify client from configuration.
// client is used for token and API requests; nil selects [http.DefaultClient].
func NewSpotifyService(cfg shared.SpotifyConfig, client *http.Client) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       SpotifyScopes,
			Endpoint:     cfg.Endpoint(),
		},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: client,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.config.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, tokenError(shared.ErrTokenExchange, err)
	}
	return tok, nil
}

// Refresh obtains a new access token. The returned token keeps refreshToken
// when the provider does not rotate it.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", shared.ErrNotAuthenticated)
	}

	src := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(shared.ErrRefreshFailed, err)
	}
	return tok, nil
}

// UserProfile retrieves the current user's profile document unmodified.
func (s *SpotifyService) UserProfile(ctx context.Context, tok *oauth2.Token) (json.RawMessage, error) {
	status, body, err := s.doRequest(ctx, tok, "/me")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Err: shared.ErrAPIRequest}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid profile JSON", shared.ErrAPIRequest)
	}
	return json.RawMessage(body), nil
}

// CurrentlyPlaying retrieves the user's playback state.
// A 204 response means nothing is playing.
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context, tok *oauth2.Token) (*NowPlaying, error) {
	status, body, err := s.doRequest(ctx, tok, "/me/player/currently-playing")
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusNoContent:
		return &NowPlaying{}, nil
	case http.StatusOK:
	default:
		return nil, &StatusError{Status: status, Err: shared.ErrAPIRequest}
	}

	var cp SpotifyCurrentlyPlaying
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}

	np := &NowPlaying{Online: cp.IsPlaying}
	if cp.Item != nil {
		np.Track = summarize(cp.Item)
	}
	return np, nil
}

func summarize(t *SpotifyTrack) *PlayingTrack {
	pt := &PlayingTrack{
		Name:    t.Name,
		Artists: make([]string, 0, len(t.Artists)),
		URL:     t.ExternalURLs.Spotify,
	}
	for _, a := range t.Artists {
		pt.Artists = append(pt.Artists, a.Name)
	}
	for _, img := range t.Album.Images {
		if img.Height == thumbnailHeight {
			url := img.URL
			pt.Image = &url
			break
		}
	}
	return pt
}

// doRequest performs an authenticated GET against the Web API and returns the status and body.
func (s *SpotifyService) doRequest(ctx context.Context, tok *oauth2.Token, endpoint string) (int, []byte, error) {
	if tok == nil || tok.AccessToken == "" {
		return 0, nil, shared.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}
	return resp.StatusCode, body, nil
}

func (s *SpotifyService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// tokenError wraps a token endpoint failure, keeping the provider's status when known.
func tokenError(sentinel, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &StatusError{Status: re.Response.StatusCode, Err: fmt.Errorf("%w: %v", sentinel, err)}
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
