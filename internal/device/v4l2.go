// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ManuGH/camwatch/internal/log"
)

// V4L2Backend discovers and opens Video4Linux capture devices,
// streaming frames through an ffmpeg MJPEG pipe.
type V4L2Backend struct {
	// FFmpegBin is the ffmpeg binary to exec. Defaults to "ffmpeg".
	FFmpegBin string
	// Path pins a specific device node. Empty means discover.
	Path string
	// DevGlob is the discovery pattern. Defaults to "/dev/video*".
	DevGlob string
	// SysClassDir is the sysfs root used to classify devices.
	// Defaults to "/sys/class/video4linux".
	SysClassDir string
}

func NewV4L2Backend(ffmpegBin, path string) *V4L2Backend {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &V4L2Backend{
		FFmpegBin:   ffmpegBin,
		Path:        path,
		DevGlob:     "/dev/video*",
		SysClassDir: "/sys/class/video4linux",
	}
}

// probeTarget returns the node whose permissions stand in for camera
// access as a whole: the pinned path if set, otherwise the first
// discovered device.
func (b *V4L2Backend) probeTarget() string {
	if b.Path != "" {
		return b.Path
	}
	matches, err := filepath.Glob(b.DevGlob)
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

func (b *V4L2Backend) Access(ctx context.Context) AccessState {
	target := b.probeTarget()
	if target == "" {
		return AccessUndetermined
	}
	return accessStateFromProbe(probeNode(target))
}

func (b *V4L2Backend) RequestAccess(ctx context.Context) (AccessState, error) {
	target := b.probeTarget()
	if target == "" {
		return AccessUndetermined, nil
	}
	err := probeNode(target)
	state := accessStateFromProbe(err)
	logger := log.WithComponent("device")
	switch state {
	case AccessAuthorized:
		logger.Info().
			Str(log.FieldDevice, target).
			Str("event", "device.access.granted").
			Msg("device access granted")
	case AccessDenied:
		logger.Warn().
			Str(log.FieldDevice, target).
			Str("event", "device.access.denied").
			Msg("device access denied, check group membership and udev rules")
	case AccessRestricted:
		logger.Warn().
			Str(log.FieldDevice, target).
			Str("event", "device.access.restricted").
			Msg("device access administratively restricted")
	default:
		logger.Debug().
			Str(log.FieldDevice, target).
			Msg("device access probe inconclusive")
	}
	return state, nil
}

func (b *V4L2Backend) Devices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(b.DevGlob)
	if err != nil {
		return nil, fmt.Errorf("device discovery: %w", err)
	}
	if b.Path != "" {
		matches = []string{b.Path}
	}
	sort.Strings(matches)

	devices := make([]Device, 0, len(matches))
	for _, path := range matches {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		devices = append(devices, Device{
			ID:   filepath.Base(path),
			Path: path,
			Name: b.deviceName(path),
			Kind: b.classifyKind(path),
		})
	}
	return devices, nil
}

// deviceName reads the driver-reported card name from sysfs, falling
// back to the node basename.
func (b *V4L2Backend) deviceName(path string) string {
	raw, err := os.ReadFile(filepath.Join(b.SysClassDir, filepath.Base(path), "name")) // #nosec G304 -- sysfs path derived from discovery
	if err != nil {
		return filepath.Base(path)
	}
	name := strings.TrimSpace(string(raw))
	if name == "" {
		return filepath.Base(path)
	}
	return name
}

// classifyKind inspects the sysfs device link. USB-attached cameras
// count as external, everything else as integrated.
func (b *V4L2Backend) classifyKind(path string) Kind {
	link, err := os.Readlink(filepath.Join(b.SysClassDir, filepath.Base(path), "device"))
	if err == nil && strings.Contains(link, "usb") {
		return KindExternal
	}
	return KindIntegrated
}

func (b *V4L2Backend) OpenInput(ctx context.Context, dev Device, cfg StreamConfig) (Input, error) {
	if err := probeNode(dev.Path); err != nil {
		state := accessStateFromProbe(err)
		if state == AccessAuthorized {
			// EBUSY: permission fine, device claimed elsewhere.
			return nil, fmt.Errorf("open input %s: %w (device busy)", dev.Path, ErrUnavailable)
		}
		return nil, fmt.Errorf("open input %s: %w (%v)", dev.Path, ErrUnavailable, err)
	}
	return newV4L2Input(b.FFmpegBin, dev, cfg), nil
}

var _ Backend = (*V4L2Backend)(nil)
