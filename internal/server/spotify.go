package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/services"
	"github.com/desertthunder/digits/internal/shared"
)

const (
	// SessionCookie names the cookie holding the session ID.
	SessionCookie = "digits_session"

	sessionMaxAge = 30 * 24 * time.Hour
	stateLength   = 16
)

type loginRequired struct {
	Success bool   `json:"success"`
	Details string `json:"details"`
}

type refreshFailed struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type statusFailed struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type callbackResponse struct {
	Message      string          `json:"message"`
	UserData     json.RawMessage `json:"userData"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type statusResponse struct {
	Success bool                   `json:"success"`
	Online  bool                   `json:"online"`
	Track   *services.PlayingTrack `json:"track"`
}

// SpotifyHandler is the browser-facing OAuth proxy: login, callback, token refresh
// and playback status. Token state lives in a persisted [models.Session] found via cookie.
type SpotifyHandler struct {
	srv      services.OAuthService
	sessions models.Repository[*models.Session]
	logger   *log.Logger
	now      func() time.Time
}

// NewSpotifyHandler creates a [SpotifyHandler].
func NewSpotifyHandler(srv services.OAuthService, sessions models.Repository[*models.Session], logger *log.Logger) *SpotifyHandler {
	return &SpotifyHandler{srv: srv, sessions: sessions, logger: logger, now: time.Now}
}

// Routes returns the HTTP routes this handler serves.
func (h *SpotifyHandler) Routes() []string {
	return []string{"/login", "/callback", "/refresh_token", "/status"}
}

func (h *SpotifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	case "/refresh_token":
		h.refresh(w, r)
	case "/status":
		h.status(w, r)
	default:
		notFound(w, r)
	}
}

// login stores a fresh state on the caller's session and redirects to the authorize page.
func (h *SpotifyHandler) login(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.internalError(w, r, "failed to load session", err)
		return
	}
	if s == nil {
		s = models.NewSession()
		if err := h.sessions.Create(s); err != nil {
			h.internalError(w, r, "failed to create session", err)
			return
		}
	}

	state, err := shared.GenerateState(stateLength)
	if err != nil {
		h.internalError(w, r, "failed to generate state", err)
		return
	}
	s.State = state
	if err := h.sessions.Update(s); err != nil {
		h.internalError(w, r, "failed to save session", err)
		return
	}

	setSessionCookie(w, r, s.ID())
	http.Redirect(w, r, h.srv.AuthURL(state), http.StatusFound)
}

// callback validates state, exchanges the code and stores the tokens on the session.
func (h *SpotifyHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	s, err := h.session(r)
	if err != nil {
		h.internalError(w, r, "failed to load session", err)
		return
	}
	if state == "" || s == nil || s.State == "" || state != s.State {
		writeError(w, http.StatusBadRequest, shared.ErrStateMismatch.Error())
		return
	}

	// a state is good for one callback
	s.State = ""
	if err := h.sessions.Update(s); err != nil {
		h.internalError(w, r, "failed to save session", err)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.logger.Warn("authorization denied", "error", q.Get("error"))
		writeError(w, http.StatusBadRequest, shared.ErrTokenExchange.Error())
		return
	}

	tok, err := h.srv.Exchange(r.Context(), code)
	if err != nil {
		status := services.StatusCode(err)
		if status == 0 {
			status = http.StatusBadGateway
		}
		h.logger.Warn("token exchange failed", "error", err, "status", status)
		writeError(w, status, shared.ErrTokenExchange.Error())
		return
	}

	s.SetToken(tok)
	if err := h.sessions.Update(s); err != nil {
		h.internalError(w, r, "failed to save session", err)
		return
	}

	profile, err := h.srv.UserProfile(r.Context(), tok)
	if err != nil {
		h.logger.Warn("failed to fetch user profile", "error", err)
	}

	writeJSON(w, http.StatusOK, callbackResponse{
		Message:      "Successfully Logged in",
		UserData:     profile,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	})
}

// refresh exchanges the session's refresh token for a new access token.
func (h *SpotifyHandler) refresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.internalError(w, r, "failed to load session", err)
		return
	}
	if s == nil || s.RefreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, loginRequired{Details: "Please log in first"})
		return
	}

	if !h.renew(w, r, s) {
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: s.AccessToken,
		ExpiresIn:   s.Expiry.UTC().Format(time.RFC3339),
	})
}

// status reports the currently playing track, refreshing an expired token first.
func (h *SpotifyHandler) status(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.internalError(w, r, "failed to load session", err)
		return
	}
	if s == nil || !s.LoggedIn() {
		writeJSON(w, http.StatusUnauthorized, loginRequired{Details: "Please log in first"})
		return
	}

	if s.Expired(h.now()) && !h.renew(w, r, s) {
		return
	}

	np, err := h.srv.CurrentlyPlaying(r.Context(), s.Token())
	if err != nil {
		status := services.StatusCode(err)
		if status == 0 {
			status = http.StatusBadGateway
		}
		h.logger.Warn("failed to fetch playback status", "error", err, "status", status)
		writeJSON(w, status, statusFailed{Error: "Failed to fetch status"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true, Online: np.Online, Track: np.Track})
}

// renew refreshes and persists the session's tokens, writing the error response on failure.
func (h *SpotifyHandler) renew(w http.ResponseWriter, r *http.Request, s *models.Session) bool {
	tok, err := h.srv.Refresh(r.Context(), s.RefreshToken)
	if err != nil {
		h.logger.Warn("token refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, refreshFailed{Message: shared.ErrRefreshFailed.Error()})
		return false
	}

	s.SetToken(tok)
	if err := h.sessions.Update(s); err != nil {
		h.internalError(w, r, "failed to save session", err)
		return false
	}
	return true
}

// session loads the caller's session. A missing cookie or unknown ID yields nil without error.
func (h *SpotifyHandler) session(r *http.Request) (*models.Session, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	s, err := h.sessions.Get(c.Value)
	if errors.Is(err, shared.ErrSessionNotFound) {
		return nil, nil
	}
	return s, err
}

func (h *SpotifyHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestID(r.Context()))
	writeError(w, http.StatusInternalServerError, msg)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
