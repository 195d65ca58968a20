// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDevTree lays out a fake /dev plus sysfs so discovery and
// classification run against the filesystem without real hardware.
func fakeDevTree(t *testing.T, nodes map[string]bool) *V4L2Backend {
	t.Helper()
	devDir := t.TempDir()
	sysDir := t.TempDir()

	for name, usb := range nodes {
		require.NoError(t, os.WriteFile(filepath.Join(devDir, name), nil, 0o600))
		require.NoError(t, os.MkdirAll(filepath.Join(sysDir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sysDir, name, "name"), []byte(name+" camera\n"), 0o600))

		target := "../../devices/platform/soc/camera"
		if usb {
			target = "../../devices/pci0000:00/usb1/1-2/1-2:1.0"
		}
		require.NoError(t, os.Symlink(target, filepath.Join(sysDir, name, "device")))
	}

	b := NewV4L2Backend("ffmpeg", "")
	b.DevGlob = filepath.Join(devDir, "video*")
	b.SysClassDir = sysDir
	return b
}

func TestV4L2DevicesDiscovery(t *testing.T) {
	b := fakeDevTree(t, map[string]bool{
		"video0": false,
		"video2": true,
	})

	devices, err := b.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	require.Equal(t, "video0", devices[0].ID)
	require.Equal(t, KindIntegrated, devices[0].Kind)
	require.Equal(t, "video0 camera", devices[0].Name)

	require.Equal(t, "video2", devices[1].ID)
	require.Equal(t, KindExternal, devices[1].Kind)
}

func TestV4L2DevicesEmpty(t *testing.T) {
	b := NewV4L2Backend("ffmpeg", "")
	b.DevGlob = filepath.Join(t.TempDir(), "video*")

	devices, err := b.Devices(context.Background())
	require.NoError(t, err)
	require.Empty(t, devices)
}

func TestV4L2AccessNoDevices(t *testing.T) {
	b := NewV4L2Backend("ffmpeg", "")
	b.DevGlob = filepath.Join(t.TempDir(), "video*")

	require.Equal(t, AccessUndetermined, b.Access(context.Background()))
}

func TestV4L2AccessProbesPinnedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video0")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	b := NewV4L2Backend("ffmpeg", path)
	require.Equal(t, AccessAuthorized, b.Access(context.Background()))

	b = NewV4L2Backend("ffmpeg", filepath.Join(dir, "gone"))
	require.Equal(t, AccessUndetermined, b.Access(context.Background()))
}

func TestV4L2OpenInputMissingNode(t *testing.T) {
	b := NewV4L2Backend("ffmpeg", "")
	_, err := b.OpenInput(context.Background(), Device{Path: filepath.Join(t.TempDir(), "video9")}, StreamConfig{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestV4L2InputFrameExtraction(t *testing.T) {
	in := newV4L2Input("ffmpeg", Device{Path: "/dev/video0"}, StreamConfig{Width: 640, Height: 360, FPS: 10, Quality: 70})
	out, err := in.AttachFrameOutput(StreamConfig{})
	require.NoError(t, err)

	frame1 := []byte{0xFF, 0xD8, 0x11, 0x22, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x33, 0xFF, 0xD9}
	partial := []byte{0xFF, 0xD8, 0x44}

	var buf []byte
	buf = append(buf, frame1...)
	buf = append(buf, frame2...)
	buf = append(buf, partial...)

	rest := in.extractFrames(buf)
	require.Equal(t, partial, rest, "incomplete trailing frame stays buffered")

	got1 := <-out.Frames()
	require.Equal(t, frame1, got1.Data)
	require.Equal(t, uint64(1), got1.Seq)

	got2 := <-out.Frames()
	require.Equal(t, frame2, got2.Data)
	require.Equal(t, uint64(2), got2.Seq)

	latest := in.latest.Load()
	require.NotNil(t, latest)
	require.Equal(t, frame2, latest.Data)
}

func TestV4L2InputFrameExtractionSkipsGarbage(t *testing.T) {
	in := newV4L2Input("ffmpeg", Device{Path: "/dev/video0"}, StreamConfig{Width: 640, Height: 360, FPS: 10})

	frame := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	var buf []byte
	buf = append(buf, 0x00, 0x01, 0x02) // leading junk before SOI
	buf = append(buf, frame...)

	rest := in.extractFrames(buf)
	require.Empty(t, rest)

	latest := in.latest.Load()
	require.NotNil(t, latest)
	require.Equal(t, frame, latest.Data)
}

func TestV4L2InputAttachTwice(t *testing.T) {
	in := newV4L2Input("ffmpeg", Device{Path: "/dev/video0"}, StreamConfig{})

	_, err := in.AttachFrameOutput(StreamConfig{})
	require.NoError(t, err)
	_, err = in.AttachFrameOutput(StreamConfig{})
	require.ErrorContains(t, err, "already attached")

	_, err = in.AttachPhotoOutput()
	require.NoError(t, err)
	_, err = in.AttachPhotoOutput()
	require.ErrorContains(t, err, "already attached")
}

func TestV4L2InputCloseIdempotent(t *testing.T) {
	in := newV4L2Input("ffmpeg", Device{Path: "/dev/video0"}, StreamConfig{})
	out, err := in.AttachFrameOutput(StreamConfig{})
	require.NoError(t, err)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, open := <-out.Frames()
	require.False(t, open, "frame channel closes on teardown")

	require.Error(t, in.StartRunning(context.Background()))
	_, err = in.AttachFrameOutput(StreamConfig{})
	require.ErrorContains(t, err, "input closed")
}
