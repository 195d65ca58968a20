// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeBackend is a scripted backend for tests and for running the
// daemon on machines without capture hardware. Zero value behavior:
// authorized access, one integrated device, captures succeed.
type FakeBackend struct {
	// AccessSequence is consumed one state per Access call; the last
	// entry repeats forever. Empty means always authorized.
	AccessSequence []AccessState
	// RequestResult is returned by RequestAccess when set.
	RequestResult AccessState
	// RequestErr fails RequestAccess.
	RequestErr error
	// RequestDelay stalls RequestAccess before it returns.
	RequestDelay time.Duration
	// DeviceList overrides the default single integrated device.
	DeviceList []Device
	// DevicesErr fails Devices.
	DevicesErr error
	// OpenErr fails OpenInput.
	OpenErr error
	// StartErr fails StartRunning on every opened input.
	StartErr error
	// FrameAttachErr fails AttachFrameOutput on every opened input.
	FrameAttachErr error
	// PhotoAttachErr fails AttachPhotoOutput on every opened input.
	PhotoAttachErr error
	// CaptureErr fails Capture on every photo output.
	CaptureErr error
	// CaptureDelay stalls Capture before it returns.
	CaptureDelay time.Duration
	// OrientationSupported is reported by SetOrientation.
	// Defaults to true via the constructor.
	OrientationSupported bool
	// ReportsMaxDimensions controls whether photo outputs report their
	// maximum still size. Defaults to true via the constructor.
	ReportsMaxDimensions bool

	mu          sync.Mutex
	accessIdx   int
	accessCalls int
	opens       int
	Inputs      []*FakeInput
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{OrientationSupported: true, ReportsMaxDimensions: true}
}

func (b *FakeBackend) Access(ctx context.Context) AccessState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessCalls++
	if len(b.AccessSequence) == 0 {
		return AccessAuthorized
	}
	state := b.AccessSequence[b.accessIdx]
	if b.accessIdx < len(b.AccessSequence)-1 {
		b.accessIdx++
	}
	return state
}

// AccessCalls reports how many times Access was probed.
func (b *FakeBackend) AccessCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accessCalls
}

func (b *FakeBackend) RequestAccess(ctx context.Context) (AccessState, error) {
	b.mu.Lock()
	delay := b.RequestDelay
	reqErr := b.RequestErr
	result := b.RequestResult
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return AccessUndetermined, ctx.Err()
		}
	}
	if reqErr != nil {
		return AccessUndetermined, reqErr
	}
	if result != "" {
		return result, nil
	}
	return AccessAuthorized, nil
}

func (b *FakeBackend) Devices(ctx context.Context) ([]Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DevicesErr != nil {
		return nil, b.DevicesErr
	}
	if b.DeviceList != nil {
		return append([]Device(nil), b.DeviceList...), nil
	}
	return []Device{{ID: "fake0", Path: "/dev/fake0", Name: "Fake Camera", Kind: KindIntegrated}}, nil
}

func (b *FakeBackend) OpenInput(ctx context.Context, dev Device, cfg StreamConfig) (Input, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.opens++
	in := &FakeInput{
		backend: b,
		Dev:     dev,
		Cfg:     cfg,
		done:    make(chan error, 1),
	}
	b.Inputs = append(b.Inputs, in)
	return in, nil
}

// OpenCount reports how many inputs were ever opened. Each session
// rebuild opens a fresh input, so this counts graph builds.
func (b *FakeBackend) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// LastInput returns the most recently opened input, or nil.
func (b *FakeBackend) LastInput() *FakeInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Inputs) == 0 {
		return nil
	}
	return b.Inputs[len(b.Inputs)-1]
}

// FakeInput is the scripted Input produced by FakeBackend.
type FakeInput struct {
	backend *FakeBackend
	Dev     Device
	Cfg     StreamConfig

	mu          sync.Mutex
	running     bool
	closed      bool
	starts      int
	stops       int
	closes      int
	orientation Orientation
	frameOut    *fakeFrameOutput
	seq         uint64
	latest      *Frame
	done        chan error
}

func (in *FakeInput) StartRunning(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return fmt.Errorf("start input %s: input closed", in.Dev.Path)
	}
	if in.backend.StartErr != nil {
		return in.backend.StartErr
	}
	if in.running {
		return nil
	}
	in.running = true
	in.starts++
	return nil
}

func (in *FakeInput) StopRunning() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.running {
		return
	}
	in.running = false
	in.stops++
}

func (in *FakeInput) AttachFrameOutput(cfg StreamConfig) (FrameOutput, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, fmt.Errorf("attach frame output: input closed")
	}
	if in.backend.FrameAttachErr != nil {
		return nil, in.backend.FrameAttachErr
	}
	if in.frameOut != nil {
		return nil, fmt.Errorf("attach frame output: already attached")
	}
	out := &fakeFrameOutput{in: in, ch: make(chan Frame, frameChannelBuffer)}
	in.frameOut = out
	return out, nil
}

func (in *FakeInput) AttachPhotoOutput() (PhotoOutput, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, fmt.Errorf("attach photo output: input closed")
	}
	if in.backend.PhotoAttachErr != nil {
		return nil, in.backend.PhotoAttachErr
	}
	return &fakePhotoOutput{in: in}, nil
}

func (in *FakeInput) SetOrientation(o Orientation) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.orientation = o
	return in.backend.OrientationSupported
}

func (in *FakeInput) Done() <-chan error {
	return in.done
}

func (in *FakeInput) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.running = false
	in.closes++
	out := in.frameOut
	in.mu.Unlock()

	if out != nil {
		out.Stop()
	}
	return nil
}

// EmitFrame injects a frame as if the device produced it. Returns the
// assigned sequence number.
func (in *FakeInput) EmitFrame(data []byte) uint64 {
	in.mu.Lock()
	in.seq++
	frame := Frame{
		Data:       data,
		Width:      in.Cfg.Width,
		Height:     in.Cfg.Height,
		Seq:        in.seq,
		CapturedAt: time.Now(),
	}
	in.latest = &frame
	out := in.frameOut
	in.mu.Unlock()

	if out != nil {
		out.deliver(frame)
	}
	return frame.Seq
}

// InjectRuntimeError simulates the stream dying under the controller.
func (in *FakeInput) InjectRuntimeError(err error) {
	in.mu.Lock()
	in.running = false
	in.mu.Unlock()
	select {
	case in.done <- err:
	default:
	}
}

// Running reports whether frame flow is active.
func (in *FakeInput) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.running
}

// Closed reports whether the input was torn down.
func (in *FakeInput) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// Orientation returns the last applied orientation.
func (in *FakeInput) Orientation() Orientation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.orientation
}

// Counts returns the start, stop and close call totals.
func (in *FakeInput) Counts() (starts, stops, closes int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.starts, in.stops, in.closes
}

type fakeFrameOutput struct {
	in     *FakeInput
	mu     sync.Mutex
	ch     chan Frame
	closed bool
}

func (o *fakeFrameOutput) deliver(f Frame) {
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
	select {
	case <-o.ch:
	default:
	}
	select {
	case o.ch <- f:
	default:
	}
}

func (o *fakeFrameOutput) Frames() <-chan Frame {
	return o.ch
}

func (o *fakeFrameOutput) Stop() {
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

type fakePhotoOutput struct {
	in *FakeInput
}

func (o *fakePhotoOutput) MaxDimensions() (int, int, bool) {
	if !o.in.backend.ReportsMaxDimensions {
		return 0, 0, false
	}
	return o.in.Cfg.Width, o.in.Cfg.Height, true
}

func (o *fakePhotoOutput) Capture(ctx context.Context, settings PhotoSettings) (Photo, error) {
	if d := o.in.backend.CaptureDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return Photo{}, ctx.Err()
		}
	}
	if err := o.in.backend.CaptureErr; err != nil {
		return Photo{}, err
	}

	o.in.mu.Lock()
	latest := o.in.latest
	o.in.mu.Unlock()

	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if latest != nil {
		data = latest.Data
	}
	return Photo{
		Data:       data,
		Width:      o.in.Cfg.Width,
		Height:     o.in.Cfg.Height,
		CapturedAt: time.Now(),
		Settings:   settings,
	}, nil
}

var _ Backend = (*FakeBackend)(nil)

var _ Input = (*FakeInput)(nil)
