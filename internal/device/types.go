// SPDX-License-Identifier: MIT

// Package device abstracts capture hardware behind a backend interface
// with a real V4L2/ffmpeg implementation and a scripted fake.
package device

import "time"

// AccessState describes whether the daemon may open capture devices.
type AccessState string

const (
	// AccessUndetermined means no probe has produced a verdict yet,
	// typically because the device node does not exist.
	AccessUndetermined AccessState = "undetermined"
	// AccessAuthorized means the device node can be opened.
	AccessAuthorized AccessState = "authorized"
	// AccessDenied means opening fails with a permission error the
	// operator can fix (group membership, udev rules).
	AccessDenied AccessState = "denied"
	// AccessRestricted means access is administratively blocked and
	// cannot be granted from this process.
	AccessRestricted AccessState = "restricted"
)

// Terminal reports whether the state can still change through a grant.
// Authorized and Restricted never flip back on their own.
func (s AccessState) Terminal() bool {
	return s == AccessAuthorized || s == AccessRestricted
}

func (s AccessState) String() string { return string(s) }

// Kind classifies how a device is attached.
type Kind string

const (
	KindIntegrated Kind = "integrated"
	KindExternal   Kind = "external"
)

// Device describes one capture device.
type Device struct {
	ID   string
	Path string
	Name string
	Kind Kind
}

// Orientation is the coarse physical orientation applied to outputs
// that support rotation.
type Orientation string

const (
	OrientationUnknown        Orientation = "unknown"
	OrientationPortrait       Orientation = "portrait"
	OrientationPortraitFlip   Orientation = "portrait_upside_down"
	OrientationLandscapeLeft  Orientation = "landscape_left"
	OrientationLandscapeRight Orientation = "landscape_right"
)

func (o Orientation) String() string { return string(o) }

// StreamConfig selects the video format for an input.
type StreamConfig struct {
	Width  int
	Height int
	FPS    int
	// Quality is a JPEG quality percentage, 1..100.
	Quality int
}

// Frame is one decoded frame from the stream output. Data holds a
// complete JPEG image.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// PhotoSettings selects per-capture options for a still.
type PhotoSettings struct {
	Quality     int
	Orientation Orientation
	// MaxWidth and MaxHeight request the largest still within these
	// bounds. Zero leaves the output's default size.
	MaxWidth  int
	MaxHeight int
	// HighResolution asks outputs that do not report a maximum for
	// their best full-size still.
	HighResolution bool
}

// Photo is one captured still.
type Photo struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
	Settings   PhotoSettings
}
