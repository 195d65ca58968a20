// SPDX-License-Identifier: MIT

// Package permission tracks whether the daemon may use the capture
// device, polls for grants and serves access requests.
package permission

import (
	"errors"
	"fmt"

	"github.com/ManuGH/camwatch/internal/device"
)

// ErrDenied reports that capture is blocked by the device access
// state. Callers match it with errors.Is; the message carries the
// concrete state.
var ErrDenied = errors.New("camera access denied")

// DeniedError wraps ErrDenied with the blocking state.
func DeniedError(state device.AccessState) error {
	return fmt.Errorf("%w (state %s)", ErrDenied, state)
}

// HintFunc receives non-authorized probe results and tells the
// operator how to remediate. Injected so tests can observe hints
// without scraping logs.
type HintFunc func(state device.AccessState)

// RemediationHint is the operator-facing advice for a blocking state.
func RemediationHint(state device.AccessState) string {
	switch state {
	case device.AccessDenied:
		return "add the service user to the video group or install a udev rule for the capture device"
	case device.AccessRestricted:
		return "device access is administratively disabled; review your MAC policy or container device allowlist"
	default:
		return ""
	}
}
