// SPDX-License-Identifier: MIT

// Package frames converts raw device frames into servable snapshots
// and holds the most recent one for delivery. Delivery is strictly
// most-recent-wins: consumers never see a backlog, only the newest
// frame at the time they ask.
package frames

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/ManuGH/camwatch/internal/device"
)

// Snapshot is one converted frame ready to serve.
type Snapshot struct {
	Data        []byte
	Width       int
	Height      int
	Seq         uint64
	CapturedAt  time.Time
	ContentType string
}

// Convert validates a device frame and produces a snapshot. The
// reported dimensions come from the image header, not the stream
// configuration, so rotated streams report their true size.
func Convert(f device.Frame) (Snapshot, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	return Snapshot{
		Data:        f.Data,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Seq:         f.Seq,
		CapturedAt:  f.CapturedAt,
		ContentType: "image/jpeg",
	}, nil
}
