// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
)

// handleFrame serves the most recent frame snapshot. Eager clients
// poll this instead of holding a stream open; the holder always
// returns the newest frame, never a backlog.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.frames.Latest()
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "no_frame", "no frame has been captured yet")
		return
	}

	w.Header().Set("Content-Type", snap.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Data)))
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(snap.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Data)
}
