// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/permission"
	"github.com/ManuGH/camwatch/internal/photo"
	"github.com/ManuGH/camwatch/internal/session"
)

// errorResponse is the uniform error envelope for all JSON errors.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{Error: kind, Detail: detail})
}

// writeDomainError maps the capture error taxonomy onto HTTP status
// codes. hint is attached to permission refusals so a client can show
// the operator what to fix; pass "" when no remediation applies.
func writeDomainError(w http.ResponseWriter, err error, hint string) {
	var cfgErr *session.ConfigError

	switch {
	case errors.Is(err, permission.ErrDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:  "permission_denied",
			Detail: err.Error(),
			Hint:   hint,
		})
	case errors.Is(err, device.ErrUnavailable):
		writeErrorCode(w, http.StatusServiceUnavailable, "device_unavailable", err.Error())
	case errors.Is(err, photo.ErrSessionNotRunning):
		writeErrorCode(w, http.StatusConflict, "session_not_running", err.Error())
	case errors.Is(err, photo.ErrCaptureFailed):
		writeErrorCode(w, http.StatusInternalServerError, "capture_failed", err.Error())
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:  "configuration_failed",
			Detail: cfgErr.Error(),
		})
	case errors.Is(err, session.ErrConfigurationFailed):
		writeErrorCode(w, http.StatusInternalServerError, "configuration_failed", err.Error())
	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
