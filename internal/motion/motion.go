// SPDX-License-Identifier: MIT

// Package motion samples an accelerometer, detects device activity and
// derives the physical orientation from the gravity vector.
package motion

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/camwatch/internal/device"
)

// standardGravity converts m/s^2 readings into g units.
const standardGravity = 9.80665

// Vec is one acceleration reading in g units. At rest the magnitude is
// close to 1.0 (gravity only).
type Vec struct {
	X float64
	Y float64
	Z float64
}

// Magnitude returns the euclidean norm of the vector.
func (v Vec) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Source produces acceleration readings.
type Source interface {
	Read() (Vec, error)
}

// orientationDominance is the minimum axis component (g units) before
// an axis counts as gravity-dominant. A device lying flat stays below
// it on x and y, so orientation never flips while on a table.
const orientationDominance = 0.6

// orientationFromVec maps the gravity direction to an orientation.
// Unknown means no axis dominates (device flat or in free fall); the
// caller keeps the previous orientation in that case.
func orientationFromVec(v Vec) device.Orientation {
	ax, ay := math.Abs(v.X), math.Abs(v.Y)
	switch {
	case ay >= ax && ay >= orientationDominance:
		if v.Y < 0 {
			return device.OrientationPortrait
		}
		return device.OrientationPortraitFlip
	case ax > ay && ax >= orientationDominance:
		if v.X > 0 {
			return device.OrientationLandscapeLeft
		}
		return device.OrientationLandscapeRight
	default:
		return device.OrientationUnknown
	}
}

// IIOSource reads a Linux industrial-IO accelerometer from sysfs.
type IIOSource struct {
	// Dir is the iio device directory,
	// e.g. /sys/bus/iio/devices/iio:device0.
	Dir string
}

func (s *IIOSource) Read() (Vec, error) {
	scale, err := s.readFloat("in_accel_scale")
	if err != nil {
		return Vec{}, err
	}

	var v Vec
	for axis, target := range map[string]*float64{
		"in_accel_x_raw": &v.X,
		"in_accel_y_raw": &v.Y,
		"in_accel_z_raw": &v.Z,
	} {
		raw, err := s.readFloat(axis)
		if err != nil {
			return Vec{}, err
		}
		*target = raw * scale / standardGravity
	}
	return v, nil
}

func (s *IIOSource) readFloat(name string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, name)) // #nosec G304 -- sysfs path from trusted config
	if err != nil {
		return 0, fmt.Errorf("read accelerometer: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse accelerometer %s: %w", name, err)
	}
	return v, nil
}

// FakeSource is a scripted source for tests. Readings are consumed one
// per Read; the last entry repeats forever.
type FakeSource struct {
	Readings []Vec
	Err      error

	mu  sync.Mutex
	idx int
}

// Resting is a convenience reading for a device sitting upright.
func Resting() Vec { return Vec{Y: -1.0} }

// Moving is a convenience reading above any sane activity threshold.
func Moving() Vec { return Vec{X: 0.4, Y: -1.0, Z: 0.3} }

func (s *FakeSource) Read() (Vec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Vec{}, s.Err
	}
	if len(s.Readings) == 0 {
		return Resting(), nil
	}
	v := s.Readings[s.idx]
	if s.idx < len(s.Readings)-1 {
		s.idx++
	}
	return v, nil
}

// Set replaces the script with a single repeating reading.
func (s *FakeSource) Set(v Vec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Readings = []Vec{v}
	s.idx = 0
}

var (
	_ Source = (*IIOSource)(nil)
	_ Source = (*FakeSource)(nil)
)
