// SPDX-License-Identifier: MIT

package device

// QualityProfile names a capture tier. The subdued tier trades
// resolution and frame rate for a smaller memory and CPU footprint.
type QualityProfile string

const (
	ProfileNormal  QualityProfile = "normal"
	ProfileSubdued QualityProfile = "subdued"
)

// Dimensions returns the frame width and height for the profile.
func (p QualityProfile) Dimensions() (width, height int) {
	if p == ProfileSubdued {
		return 640, 360
	}
	return 1280, 720
}

// FrameRate returns the stream frame rate for the profile.
func (p QualityProfile) FrameRate() int {
	if p == ProfileSubdued {
		return 10
	}
	return 30
}

// JPEGQuality returns the stream encode quality for the profile.
func (p QualityProfile) JPEGQuality() int {
	if p == ProfileSubdued {
		return 60
	}
	return 85
}

// StreamConfig expands the profile into concrete stream parameters.
func (p QualityProfile) StreamConfig() StreamConfig {
	w, h := p.Dimensions()
	return StreamConfig{
		Width:   w,
		Height:  h,
		FPS:     p.FrameRate(),
		Quality: p.JPEGQuality(),
	}
}

func (p QualityProfile) String() string {
	return string(p)
}
