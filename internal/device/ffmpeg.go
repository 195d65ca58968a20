// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"strconv"
)

// StreamInputSpec defines the capture source parameters.
type StreamInputSpec struct {
	DevicePath string
	Width      int
	Height     int
	FPS        int
}

// StreamOutputSpec defines the MJPEG pipe output parameters.
type StreamOutputSpec struct {
	// Quality is a JPEG quality percentage, 1..100.
	Quality     int
	Orientation Orientation
}

// jpegQScale maps a quality percentage to the ffmpeg mjpeg quantizer
// range (2 best .. 31 worst).
func jpegQScale(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return 31 - (quality-1)*29/99
}

// rotationFilter maps an orientation to an ffmpeg video filter chain.
// Landscape-left is the sensor's natural orientation.
func rotationFilter(o Orientation) string {
	switch o {
	case OrientationPortrait:
		return "transpose=1"
	case OrientationPortraitFlip:
		return "transpose=2"
	case OrientationLandscapeRight:
		return "hflip,vflip"
	default:
		return ""
	}
}

// BuildStreamArgs constructs the ffmpeg arguments for the continuous
// MJPEG frame pipe on stdout. It avoids shell usage so no argument can
// be reinterpreted.
func BuildStreamArgs(in StreamInputSpec, out StreamOutputSpec) ([]string, error) {
	if in.DevicePath == "" {
		return nil, fmt.Errorf("missing device path")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", in.Width, in.Height)
	}
	if in.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", in.FPS)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error", // We capture stderr
		"-nostats",

		// Input
		"-f", "v4l2",
		"-framerate", strconv.Itoa(in.FPS),
		"-video_size", fmt.Sprintf("%dx%d", in.Width, in.Height),
		"-i", in.DevicePath,
	}

	if filter := rotationFilter(out.Orientation); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args,
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(jpegQScale(out.Quality)),
		"-f", "mjpeg",
		"-",
	)
	return args, nil
}
