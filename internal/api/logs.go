// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/ManuGH/camwatch/internal/log"
)

// logsResponse carries the retained log ring plus its drop counters, so
// an operator can tell when the window is incomplete.
type logsResponse struct {
	Entries []log.Entry  `json:"entries"`
	Count   int          `json:"count"`
	Dropped logsDropInfo `json:"dropped"`
}

type logsDropInfo struct {
	PartialOverflow uint64 `json:"partialOverflow"`
	TooLargeLines   uint64 `json:"tooLargeLines"`
	Irrelevant      uint64 `json:"irrelevant"`
	ParseFailures   uint64 `json:"parseFailures"`
}

// handleLogs serves the in-memory ring of recent warn/error and event
// log lines, oldest first. It reads process state, not the journal, so
// it stays available even when persistence is down.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := log.GetRecentLogs()
	if entries == nil {
		entries = make([]log.Entry, 0)
	}
	m := log.GetBufferMetrics()
	writeJSON(w, http.StatusOK, logsResponse{
		Entries: entries,
		Count:   len(entries),
		Dropped: logsDropInfo{
			PartialOverflow: m.DroppedPartialOverflow,
			TooLargeLines:   m.DroppedTooLargeLines,
			Irrelevant:      m.DroppedIrrelevant,
			ParseFailures:   m.ParseFailures,
		},
	})
}
