package httpserver

import (
	"net/http"
	"strings"
)

// handleStock serves one symbol through the read-through cache and
// broadcasts the refreshed price into the symbol's room.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	s.rt.Scheduler().Touch()
	st, err := s.rt.Feed().PublishStock(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSummary serves the shared market overview.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sum, err := s.rt.Summary().Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// Get records the activity; make sure the refresh loop is live now
	// that the cache counts as active.
	s.rt.Scheduler().EnsureRunning()
	writeJSON(w, http.StatusOK, sum)
}

// handleHistory serves the rolling price snapshot window.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snaps := s.rt.History().Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"capacity":  s.rt.History().Capacity(),
		"snapshots": snaps,
	})
}
