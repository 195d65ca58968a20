// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/permission"
)

// startRequest is the optional body of POST /api/v1/session/start.
type startRequest struct {
	// RequirePermission asks the daemon to prompt for access when it
	// has not been granted yet. Without it an unauthorized start is
	// refused immediately.
	RequirePermission bool `json:"requirePermission"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if err := s.session.Start(r.Context(), req.RequirePermission); err != nil {
		hint := ""
		if errors.Is(err, permission.ErrDenied) {
			hint = s.session.Status().Hint
		}
		writeDomainError(w, err, hint)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionPause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.PauseStream(r.Context()); err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionResume(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ResumeStream(r.Context()); err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

// handleSessionRelease sends the daemon to the background: the active
// session is torn down and the device handle released for other
// processes. The acquire counterpart restores it.
func (s *Server) handleSessionRelease(w http.ResponseWriter, r *http.Request) {
	s.publishVisibility(w, r, false)
}

func (s *Server) handleSessionAcquire(w http.ResponseWriter, r *http.Request) {
	s.publishVisibility(w, r, true)
}

func (s *Server) publishVisibility(w http.ResponseWriter, r *http.Request, foreground bool) {
	if s.bus == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "bus_unavailable", "event bus is not wired")
		return
	}
	err := s.bus.Publish(r.Context(), events.TopicVisibility, events.VisibilityChange{
		Foreground: foreground,
		Source:     "api",
	})
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "publish_failed", err.Error())
		return
	}
	// The controller consumes the event asynchronously; the snapshot
	// returned here may predate the transition.
	writeJSON(w, http.StatusAccepted, s.session.Status())
}

func (s *Server) handlePermissionRequest(w http.ResponseWriter, r *http.Request) {
	state, err := s.session.AskForPermission(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}

	resp := map[string]string{"permission": string(state)}
	if state != device.AccessAuthorized {
		resp["hint"] = permission.RemediationHint(state)
	}
	writeJSON(w, http.StatusOK, resp)

	log.WithComponentFromContext(r.Context(), "api").Info().
		Str("event", "permission.requested").
		Str("state", string(state)).
		Msg("permission request resolved")
}

// decodeOptionalBody decodes a JSON body into v, accepting an empty
// body as the zero value. Unknown fields are rejected, trailing data
// is not.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
