package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/digits/internal/services"
	"github.com/desertthunder/digits/internal/shared"
	"golang.org/x/oauth2"
)

const loginPage = `<!DOCTYPE html>
<html>
<head>
    <title>digits: logged in</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Successfully Logged in</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`

// OAuthResult contains the result of a terminal login flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves the single redirect of a terminal login and hands the token back
// over a channel. Used by `digits spotify login`; the web server uses [SpotifyHandler].
type OAuthHandler struct {
	srv         services.OAuthService
	state       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler that accepts one callback carrying state.
func NewOAuthHandler(srv services.OAuthService, state string) *OAuthHandler {
	return &OAuthHandler{
		srv:        srv,
		state:      state,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP validates state, exchanges the code and sends the result through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		writeError(w, http.StatusBadRequest, "callback already processed")
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: shared.ErrStateMismatch})
		writeError(w, http.StatusBadRequest, shared.ErrStateMismatch.Error())
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", shared.ErrTokenExchange, q.Get("error"), q.Get("error_description"))
		h.Send(OAuthResult{err: err})
		writeError(w, http.StatusBadRequest, shared.ErrTokenExchange.Error())
		return
	}

	token, err := h.srv.Exchange(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: err})
		status := services.StatusCode(err)
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeError(w, status, shared.ErrTokenExchange.Error())
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, loginPage)
}

// Send sends the result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving login completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
