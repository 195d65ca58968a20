// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldGraphID   = "graph_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"

	// Capture fields
	FieldDevice      = "device"
	FieldProfile     = "profile"
	FieldResolution  = "resolution"
	FieldFPS         = "fps"
	FieldOrientation = "orientation"

	// State fields
	FieldOldState   = "old_state"
	FieldNewState   = "new_state"
	FieldPermission = "permission"
	FieldPressure   = "pressure"

	// Path fields
	FieldPath = "path"
)
