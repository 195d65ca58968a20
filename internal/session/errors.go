// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
)

// ErrConfigurationFailed classifies every graph build failure that is
// not a device availability or permission problem.
var ErrConfigurationFailed = errors.New("session configuration failed")

// ConfigError carries the configure step that failed. Code is a stable
// machine-readable identifier such as "open_input" or "start_running".
type ConfigError struct {
	Code string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration failed (%s): %v", e.Code, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches ErrConfigurationFailed so callers can test the class
// without knowing the step code.
func (e *ConfigError) Is(target error) bool { return target == ErrConfigurationFailed }
