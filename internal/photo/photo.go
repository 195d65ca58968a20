// SPDX-License-Identifier: MIT

// Package photo coordinates discrete still captures off the session
// run loop.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/storage"
)

var (
	// ErrCaptureFailed wraps every failure between shutter and index.
	ErrCaptureFailed = errors.New("photo capture failed")
	// ErrSessionNotRunning refuses captures while the stream is not live.
	ErrSessionNotRunning = errors.New("session is not running")
)

// Settings selects per-capture options.
type Settings struct {
	// Quality overrides the pressure-derived JPEG quality when > 0.
	Quality int
	// Orientation tags the capture; unknown leaves the frame as is.
	Orientation device.Orientation
}

// Result resolves a capture request exactly once.
type Result struct {
	Record storage.Record
	Err    error
}

// Processor turns a raw device photo into the bytes that get saved.
type Processor interface {
	Process(ctx context.Context, raw device.Photo, quality int) (data []byte, width, height int, err error)
}

// jpegProcessor re-encodes the captured frame at the requested quality.
type jpegProcessor struct{}

func (jpegProcessor) Process(ctx context.Context, raw device.Photo, quality int) ([]byte, int, int, error) {
	img, err := jpeg.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode captured frame: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode photo: %w", err)
	}
	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
