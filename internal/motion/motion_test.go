// SPDX-License-Identifier: MIT

package motion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camwatch/internal/device"
)

func TestVecMagnitude(t *testing.T) {
	require.InDelta(t, 1.0, Vec{Y: -1}.Magnitude(), 0.0001)
	require.InDelta(t, 5.0, Vec{X: 3, Y: 4}.Magnitude(), 0.0001)
	require.Zero(t, Vec{}.Magnitude())
}

func TestOrientationFromVec(t *testing.T) {
	cases := []struct {
		name string
		v    Vec
		want device.Orientation
	}{
		{"upright", Vec{Y: -0.98}, device.OrientationPortrait},
		{"upside down", Vec{Y: 0.97}, device.OrientationPortraitFlip},
		{"on left edge", Vec{X: 0.99}, device.OrientationLandscapeLeft},
		{"on right edge", Vec{X: -0.95}, device.OrientationLandscapeRight},
		{"flat on table", Vec{Z: -1.0}, device.OrientationUnknown},
		{"face up", Vec{Z: 1.0}, device.OrientationUnknown},
		{"free fall", Vec{}, device.OrientationUnknown},
		{"tilted but portrait dominant", Vec{X: 0.3, Y: -0.9, Z: 0.2}, device.OrientationPortrait},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, orientationFromVec(tc.v))
		})
	}
}

func writeIIOFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestIIOSourceRead(t *testing.T) {
	dir := t.TempDir()
	writeIIOFile(t, dir, "in_accel_scale", "0.019122\n")
	writeIIOFile(t, dir, "in_accel_x_raw", "0\n")
	writeIIOFile(t, dir, "in_accel_y_raw", "-513\n")
	writeIIOFile(t, dir, "in_accel_z_raw", "12\n")

	s := &IIOSource{Dir: dir}
	v, err := s.Read()
	require.NoError(t, err)

	// -513 * 0.019122 / 9.80665 ~= -1.0004 g
	require.InDelta(t, -1.0004, v.Y, 0.001)
	require.Zero(t, v.X)
	require.InDelta(t, 0.0234, v.Z, 0.001)
	require.InDelta(t, 1.0, v.Magnitude(), 0.01, "resting device reads about 1 g")
}

func TestIIOSourceMissingFiles(t *testing.T) {
	s := &IIOSource{Dir: t.TempDir()}
	_, err := s.Read()
	require.Error(t, err)
}

func TestIIOSourceMalformedValue(t *testing.T) {
	dir := t.TempDir()
	writeIIOFile(t, dir, "in_accel_scale", "banana\n")

	s := &IIOSource{Dir: dir}
	_, err := s.Read()
	require.ErrorContains(t, err, "parse accelerometer")
}

func TestFakeSourceScriptSticks(t *testing.T) {
	s := &FakeSource{Readings: []Vec{
		Resting(),
		Moving(),
	}}

	v, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, Resting(), v)

	for i := 0; i < 3; i++ {
		v, err = s.Read()
		require.NoError(t, err)
		require.Equal(t, Moving(), v, "last reading repeats")
	}
}

func TestFakeSourceDefaultsToResting(t *testing.T) {
	s := &FakeSource{}
	v, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, Resting(), v)
}

func TestFakeSourceError(t *testing.T) {
	boom := errors.New("boom")
	s := &FakeSource{Err: boom}
	_, err := s.Read()
	require.ErrorIs(t, err, boom)
}

func TestActivityThresholdConvention(t *testing.T) {
	require.Less(t, Resting().Magnitude(), 1.01, "resting stays under the default threshold")
	require.Greater(t, Moving().Magnitude(), 1.01, "moving exceeds the default threshold")
}
