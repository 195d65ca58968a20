// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"

	"github.com/ManuGH/camwatch/internal/journal"
)

const defaultEventLimit = 100

// eventsResponse wraps the journal tail.
type eventsResponse struct {
	Events []journal.Entry `json:"events"`
	Count  int             `json:"count"`
}

// handleEvents serves the newest journal rows, most recent first.
// ?limit caps the row count; the journal enforces its own upper bound.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "journal_unavailable", "event journal is not wired")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeErrorCode(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.journal.Tail(r.Context(), limit)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	if entries == nil {
		entries = make([]journal.Entry, 0)
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: entries, Count: len(entries)})
}
