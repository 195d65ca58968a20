// SPDX-License-Identifier: MIT

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used across the daemon's spans.
const (
	// Session attributes
	SessionIDKey    = "session.id"
	SessionStateKey = "session.state"

	// Capture graph attributes
	GraphIDKey     = "graph.id"
	DeviceKey      = "device.path"
	DeviceKindKey  = "device.kind"
	ProfileKey     = "capture.profile"
	ResolutionKey  = "capture.resolution"
	FrameRateKey   = "capture.fps"
	OrientationKey = "capture.orientation"

	// Photo attributes
	PhotoNameKey    = "photo.name"
	PhotoBytesKey   = "photo.bytes"
	PhotoQualityKey = "photo.quality"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates session-scoped span attributes.
func SessionAttributes(sessionID, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	return attrs
}

// ConfigureAttributes creates attributes for a configure bracket span.
func ConfigureAttributes(profile, orientation string, width, height, fps int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProfileKey, profile),
		attribute.String(OrientationKey, orientation),
		attribute.String(ResolutionKey, fmt.Sprintf("%dx%d", width, height)),
		attribute.Int(FrameRateKey, fps),
	}
}

// GraphAttributes creates attributes describing a built capture graph.
func GraphAttributes(graphID, devicePath, deviceKind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(GraphIDKey, graphID),
		attribute.String(DeviceKey, devicePath),
		attribute.String(DeviceKindKey, deviceKind),
	}
}

// PhotoAttributes creates attributes for a photo capture span.
func PhotoAttributes(name string, bytes, quality int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PhotoNameKey, name),
		attribute.Int(PhotoBytesKey, bytes),
		attribute.Int(PhotoQualityKey, quality),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
