// SPDX-License-Identifier: MIT

package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const (
	frameChannelBuffer = 8
	stopGracePeriod    = 2 * time.Second
	captureWaitStep    = 20 * time.Millisecond
	// maxFrameBytes caps a single JPEG so a corrupt stream cannot
	// grow the demux buffer without bound.
	maxFrameBytes = 8 << 20
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// v4l2Input owns one claimed device node and the ffmpeg process that
// streams it. All frame flow runs through the demux loop; outputs only
// ever observe complete JPEG frames.
type v4l2Input struct {
	binPath string
	dev     Device
	cfg     StreamConfig

	mu          sync.Mutex
	running     bool
	closed      bool
	stopping    bool
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	demuxDone   chan struct{}
	orientation Orientation
	frameOut    *v4l2FrameOutput
	photoOut    *v4l2PhotoOutput

	ring   *LineRing
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64
	done   chan error
}

func newV4L2Input(binPath string, dev Device, cfg StreamConfig) *v4l2Input {
	return &v4l2Input{
		binPath:     binPath,
		dev:         dev,
		cfg:         cfg,
		orientation: OrientationLandscapeLeft,
		ring:        NewLineRing(256),
		done:        make(chan error, 1),
	}
}

func (in *v4l2Input) StartRunning(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return fmt.Errorf("start input %s: input closed", in.dev.Path)
	}
	if in.running {
		return nil
	}

	args, err := BuildStreamArgs(
		StreamInputSpec{
			DevicePath: in.dev.Path,
			Width:      in.cfg.Width,
			Height:     in.cfg.Height,
			FPS:        in.cfg.FPS,
		},
		StreamOutputSpec{
			Quality:     in.cfg.Quality,
			Orientation: in.orientation,
		},
	)
	if err != nil {
		return fmt.Errorf("start input %s: %w", in.dev.Path, err)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, in.binPath, args...) // #nosec G204 -- args constructed internally; binary path from trusted config

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("start input %s: %w", in.dev.Path, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("start input %s: %w", in.dev.Path, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			_, _ = in.ring.Write(scanner.Bytes())
			_, _ = in.ring.Write([]byte("\n"))
		}
	}()

	logger := log.WithComponent("device")
	logger.Debug().
		Str(log.FieldDevice, in.dev.Path).
		Str("command", cmd.String()).
		Msg("starting capture process")

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start input %s: %w (%v)", in.dev.Path, ErrUnavailable, err)
	}

	in.cmd = cmd
	in.cancel = cancel
	in.running = true
	in.stopping = false
	in.demuxDone = make(chan struct{})

	go in.demuxLoop(stdout, in.demuxDone)
	go in.waitLoop(cmd, in.demuxDone)
	return nil
}

// demuxLoop splits the MJPEG byte stream into individual JPEG frames.
func (in *v4l2Input) demuxLoop(stdout io.Reader, done chan struct{}) {
	defer close(done)

	reader := bufio.NewReaderSize(stdout, 256<<10)
	var buf []byte
	chunk := make([]byte, 64<<10)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = in.extractFrames(buf)
			if len(buf) > maxFrameBytes {
				metrics.IncFrameDropped("oversize")
				buf = buf[:0]
			}
		}
		if err != nil {
			return
		}
	}
}

// extractFrames delivers every complete SOI..EOI frame in buf and
// returns the unconsumed tail.
func (in *v4l2Input) extractFrames(buf []byte) []byte {
	for {
		start := bytes.Index(buf, jpegSOI)
		if start < 0 {
			return buf[:0]
		}
		end := bytes.Index(buf[start+len(jpegSOI):], jpegEOI)
		if end < 0 {
			return buf[start:]
		}
		frameEnd := start + len(jpegSOI) + end + len(jpegEOI)

		data := make([]byte, frameEnd-start)
		copy(data, buf[start:frameEnd])
		in.publishFrame(data)

		buf = buf[frameEnd:]
	}
}

func (in *v4l2Input) publishFrame(data []byte) {
	frame := Frame{
		Data:       data,
		Width:      in.cfg.Width,
		Height:     in.cfg.Height,
		Seq:        in.seq.Add(1),
		CapturedAt: time.Now(),
	}
	in.latest.Store(&frame)

	in.mu.Lock()
	out := in.frameOut
	in.mu.Unlock()
	if out != nil {
		out.deliver(frame)
	}
}

// waitLoop reaps the process and signals unexpected exits.
func (in *v4l2Input) waitLoop(cmd *exec.Cmd, demuxDone chan struct{}) {
	err := cmd.Wait()
	<-demuxDone

	in.mu.Lock()
	expected := in.stopping || in.closed
	in.running = false
	in.mu.Unlock()

	if expected {
		return
	}

	if err == nil {
		err = fmt.Errorf("capture process exited")
	}
	lines := in.ring.LastN(20)
	logger := log.WithComponent("device")
	logger.Error().
		Str(log.FieldDevice, in.dev.Path).
		Strs("stderr", lines).
		Err(err).
		Str("event", "device.stream.died").
		Msg("capture process died unexpectedly")

	select {
	case in.done <- fmt.Errorf("input %s: %w (%v)", in.dev.Path, ErrUnavailable, err):
	default:
	}
}

func (in *v4l2Input) StopRunning() {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return
	}
	in.stopping = true
	cmd := in.cmd
	cancel := in.cancel
	demuxDone := in.demuxDone
	in.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-demuxDone:
	case <-time.After(stopGracePeriod):
		cancel()
		<-demuxDone
	}

	in.mu.Lock()
	in.running = false
	in.cmd = nil
	in.mu.Unlock()
}

func (in *v4l2Input) AttachFrameOutput(cfg StreamConfig) (FrameOutput, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, fmt.Errorf("attach frame output: input closed")
	}
	if in.frameOut != nil {
		return nil, fmt.Errorf("attach frame output: already attached")
	}
	out := &v4l2FrameOutput{
		in: in,
		ch: make(chan Frame, frameChannelBuffer),
	}
	in.frameOut = out
	return out, nil
}

func (in *v4l2Input) AttachPhotoOutput() (PhotoOutput, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, fmt.Errorf("attach photo output: input closed")
	}
	if in.photoOut != nil {
		return nil, fmt.Errorf("attach photo output: already attached")
	}
	out := &v4l2PhotoOutput{in: in}
	in.photoOut = out
	return out, nil
}

// SetOrientation records the orientation for the next stream start.
// The rotation filter is baked into the process arguments, so a change
// takes effect on the next StartRunning.
func (in *v4l2Input) SetOrientation(o Orientation) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.orientation = o
	return true
}

func (in *v4l2Input) Done() <-chan error {
	return in.done
}

func (in *v4l2Input) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	out := in.frameOut
	in.mu.Unlock()

	in.StopRunning()
	if out != nil {
		out.Stop()
	}
	return nil
}

// v4l2FrameOutput forwards demuxed frames to its consumer channel,
// keeping the newest frame when the consumer lags.
type v4l2FrameOutput struct {
	in     *v4l2Input
	ch     chan Frame
	mu     sync.Mutex
	closed bool
}

func (o *v4l2FrameOutput) deliver(f Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- f:
		return
	default:
	}
	// Consumer lagging: evict the oldest buffered frame.
	select {
	case <-o.ch:
	default:
	}
	select {
	case o.ch <- f:
	default:
	}
	metrics.IncFrameDropped("backpressure")
}

func (o *v4l2FrameOutput) Frames() <-chan Frame {
	return o.ch
}

func (o *v4l2FrameOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)

	o.in.mu.Lock()
	if o.in.frameOut == o {
		o.in.frameOut = nil
	}
	o.in.mu.Unlock()
}

// v4l2PhotoOutput snapshots the live stream. The still is taken from
// the next frame the stream produces after the capture request;
// Settings are recorded on the result for metadata.
type v4l2PhotoOutput struct {
	in *v4l2Input
}

// MaxDimensions reports the configured stream size. Stills are stream
// snapshots, so the stream format bounds them.
func (o *v4l2PhotoOutput) MaxDimensions() (int, int, bool) {
	return o.in.cfg.Width, o.in.cfg.Height, true
}

func (o *v4l2PhotoOutput) Capture(ctx context.Context, settings PhotoSettings) (Photo, error) {
	requestedAt := time.Now()
	var floor uint64
	if f := o.in.latest.Load(); f != nil {
		floor = f.Seq
	}

	ticker := time.NewTicker(captureWaitStep)
	defer ticker.Stop()

	for {
		if f := o.in.latest.Load(); f != nil && f.Seq > floor {
			return Photo{
				Data:       f.Data,
				Width:      f.Width,
				Height:     f.Height,
				CapturedAt: f.CapturedAt,
				Settings:   settings,
			}, nil
		}
		select {
		case <-ctx.Done():
			return Photo{}, fmt.Errorf("capture still on %s after %s: %w",
				o.in.dev.Path, time.Since(requestedAt).Round(time.Millisecond), ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ Input = (*v4l2Input)(nil)
