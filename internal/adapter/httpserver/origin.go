package httpserver

import (
	"log/slog"
	"net/http"
	"strings"
)

// NewCheckOrigin returns a CheckOrigin function for the websocket upgrader.
// An empty allow list accepts every origin. Requests without an Origin
// header (non-browser clients) are always accepted.
func NewCheckOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimSuffix(strings.ToLower(origin), "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
