package server

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 200
)

// HandleStatus returns the server state, the round and turn of the running
// match and the connected bots
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	// Enable CORS for cross-origin requests
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.Status())
}

// HandleMatches returns the most recent finished matches, newest first
func (s *Server) HandleMatches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if s.history == nil {
		http.Error(w, "match history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultMatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMatchLimit)
	}

	matches, err := s.history.RecentMatches(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Loading match history failed")
		http.Error(w, "failed to load matches", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"matches": matches,
	})
}
