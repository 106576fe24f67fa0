package server

import (
	"net/http"
)

// StatusHandler serves the informational routes: index, testing and health.
type StatusHandler struct {
	models []string
}

// NewStatusHandler creates a [StatusHandler] reporting the given model names on /health.
func NewStatusHandler(models []string) *StatusHandler {
	return &StatusHandler{models: models}
}

// Routes returns the HTTP routes this handler serves.
func (h *StatusHandler) Routes() []string {
	return []string{"/{$}", "/testing", "/health"}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch r.URL.Path {
	case "/":
		writeJSON(w, http.StatusOK, map[string]string{"message": "Server is running..."})
	case "/testing":
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case "/health":
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "models": h.models})
	default:
		notFound(w, r)
	}
}
