// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/config"
)

// Deps contains the dependencies the daemon Manager needs. Keeping
// them explicit makes the manager testable without a full bootstrap.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// Holder provides the live configuration.
	Holder *config.Holder

	// APIHandler is the fully wired HTTP surface.
	APIHandler http.Handler
}

// Validate checks that the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.Holder == nil {
		return ErrMissingHolder
	}
	return nil
}
