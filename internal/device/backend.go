// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports that no usable capture device exists or the
// selected device cannot be opened.
var ErrUnavailable = errors.New("capture device unavailable")

// Backend is the capture hardware abstraction. The controller only
// ever talks to this interface; tests inject a fake.
type Backend interface {
	// Access probes the current device access state without side effects.
	Access(ctx context.Context) AccessState
	// RequestAccess performs the one-shot access attempt that may
	// settle an undetermined state. It returns the resulting state.
	RequestAccess(ctx context.Context) (AccessState, error)
	// Devices lists the capture devices currently present.
	Devices(ctx context.Context) ([]Device, error)
	// OpenInput claims a device and prepares it for streaming. The
	// returned Input owns the device until Close.
	OpenInput(ctx context.Context, dev Device, cfg StreamConfig) (Input, error)
}

// Input is an opened capture device with an attachable output graph.
type Input interface {
	// StartRunning begins frame flow. Calling it while running is a no-op.
	StartRunning(ctx context.Context) error
	// StopRunning halts frame flow but keeps the graph attached.
	// Idempotent.
	StopRunning()
	// AttachFrameOutput adds the streaming output. At most one per input.
	AttachFrameOutput(cfg StreamConfig) (FrameOutput, error)
	// AttachPhotoOutput adds the still capture output. At most one per
	// input. Failure here must be tolerated by callers.
	AttachPhotoOutput() (PhotoOutput, error)
	// SetOrientation applies the orientation to attached outputs and
	// reports whether the input supports rotation at all.
	SetOrientation(o Orientation) bool
	// Done receives exactly one error if the stream terminates without
	// StopRunning or Close having been called. Clean stops never signal.
	Done() <-chan error
	// Close releases the device and all outputs. Idempotent.
	Close() error
}

// FrameOutput delivers the live frame stream.
type FrameOutput interface {
	// Frames returns the delivery channel. It is closed by Stop and by
	// input teardown.
	Frames() <-chan Frame
	// Stop detaches the output. Idempotent.
	Stop()
}

// PhotoOutput captures stills on demand.
type PhotoOutput interface {
	Capture(ctx context.Context, settings PhotoSettings) (Photo, error)
	// MaxDimensions reports the largest still the output can produce.
	// ok is false on outputs that do not report capability dimensions.
	MaxDimensions() (width, height int, ok bool)
}

// Restricted wraps a backend so every access probe reports the
// administrative restriction. Device discovery still works; only
// capture is blocked. This backs the capture-disabled configuration.
func Restricted(inner Backend) Backend {
	return &restrictedBackend{inner: inner}
}

type restrictedBackend struct{ inner Backend }

func (r *restrictedBackend) Access(context.Context) AccessState { return AccessRestricted }

func (r *restrictedBackend) RequestAccess(context.Context) (AccessState, error) {
	return AccessRestricted, nil
}

func (r *restrictedBackend) Devices(ctx context.Context) ([]Device, error) {
	return r.inner.Devices(ctx)
}

func (r *restrictedBackend) OpenInput(context.Context, Device, StreamConfig) (Input, error) {
	return nil, fmt.Errorf("capture administratively restricted")
}
