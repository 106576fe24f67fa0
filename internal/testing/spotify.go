package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/digits/internal/shared"
)

const (
	FakeClientID     = "test_client_id"
	FakeClientSecret = "test_client_secret"
	FakeCode         = "good-code"
	FakeProfile      = `{"id":"user-1","display_name":"Test User","email":"test@example.com"}`
	FakePlaying      = `{
		"is_playing": true,
		"progress_ms": 1000,
		"item": {
			"id": "track-1",
			"name": "Digits",
			"artists": [{"id": "a1", "name": "First"}, {"id": "a2", "name": "Second"}],
			"album": {"id": "al1", "name": "Album", "images": [
				{"url": "https://img/640", "height": 640, "width": 640},
				{"url": "https://img/64", "height": 64, "width": 64}
			]},
			"external_urls": {"spotify": "https://open.spotify.com/track/track-1"}
		}
	}`
)

// FakeSpotify is an in-process stand-in for the Spotify Accounts service and Web API.
//
// Authorization codes other than [FakeCode] are rejected with 400. Each token grant
// issues a fresh access token; refresh grants do not rotate the refresh token.
type FakeSpotify struct {
	Server *httptest.Server

	mu            sync.Mutex
	tokenStatus   int
	playingStatus int
	playingBody   string
	issued        int
	requests      []string
}

// NewFakeSpotify starts a fake provider that is closed when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{playingStatus: http.StatusOK, playingBody: FakePlaying}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", f.token)
	mux.HandleFunc("/v1/me", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(FakeProfile))
	}))
	mux.HandleFunc("/v1/me/player/currently-playing", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status, body := f.playingStatus, f.playingBody
		f.mu.Unlock()

		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Config returns Spotify settings pointing at the fake.
func (f *FakeSpotify) Config() shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:     FakeClientID,
		ClientSecret: FakeClientSecret,
		RedirectURI:  "http://127.0.0.1:8000/callback",
		AuthURL:      f.Server.URL + "/authorize",
		TokenURL:     f.Server.URL + "/api/token",
		APIURL:       f.Server.URL + "/v1",
	}
}

// FailTokens makes every token grant respond with status.
func (f *FakeSpotify) FailTokens(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
}

// SetPlaying sets the status and body of the currently-playing endpoint.
func (f *FakeSpotify) SetPlaying(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playingStatus, f.playingBody = status, body
}

// Requests returns the paths (with grant type for token calls) received so far.
func (f *FakeSpotify) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeSpotify) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, s)
}

func (f *FakeSpotify) token(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != FakeClientID || secret != FakeClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	grant := r.PostForm.Get("grant_type")
	f.record("/api/token:" + grant)

	f.mu.Lock()
	status := f.tokenStatus
	f.issued++
	access := "access-" + strconv.Itoa(f.issued)
	f.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "server_error"})
		return
	}

	switch grant {
	case "authorization_code":
		if r.PostForm.Get("code") != FakeCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"refresh_token": "refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": access,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *FakeSpotify) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.Path)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401}})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
