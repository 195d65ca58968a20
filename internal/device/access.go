// SPDX-License-Identifier: MIT

package device

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// accessStateFromProbe maps the outcome of opening a device node to an
// access state. EBUSY still counts as authorized since the kernel only
// reports contention after the permission check passed.
func accessStateFromProbe(err error) AccessState {
	switch {
	case err == nil:
		return AccessAuthorized
	case errors.Is(err, fs.ErrNotExist):
		return AccessUndetermined
	case errors.Is(err, syscall.EACCES):
		return AccessDenied
	case errors.Is(err, syscall.EPERM):
		return AccessRestricted
	case errors.Is(err, syscall.EBUSY):
		return AccessAuthorized
	default:
		return AccessUndetermined
	}
}

// probeNode opens and immediately closes a device node read-only.
func probeNode(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0) // #nosec G304 -- path comes from device discovery, not user input
	if err != nil {
		return err
	}
	return f.Close()
}
