package api

import (
	"net/http"
	"strconv"

	"stryd.mini/ledger/internal/logger"
)

const maxEventLimit = 500

// @Title: Recent Events
// @Route: GET /api/events?limit=...&all=true
// @Description: Returns recent committed challenge events, newest first; all=true includes rejected transactions
// @Response: Array of event or journal objects
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	if r.URL.Query().Get("all") == "true" {
		msgs := s.logger.GetRecent(limit)
		if msgs == nil {
			msgs = []logger.Message{}
		}
		s.writeJSON(w, http.StatusOK, msgs)
		return
	}
	events := s.logger.Events(limit)
	if events == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}
