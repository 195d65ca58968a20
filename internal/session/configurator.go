// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/telemetry"
)

// Graph is one built capture topology. Every rebuild produces a new
// Graph with a fresh ID, which is how rebuilds stay distinguishable
// from a surviving graph in logs and tests.
type Graph struct {
	ID          string
	Device      device.Device
	Input       device.Input
	Frames      device.FrameOutput
	Photos      device.PhotoOutput // nil when the attach failed
	Profile     device.QualityProfile
	Orientation device.Orientation
}

// Configurator builds and releases capture graphs. Configure opens a
// bracket that is guaranteed closed on return, so a build can never be
// left half applied; the run loop is the only caller, and reentry is a
// programming error.
type Configurator struct {
	backend  device.Backend
	strategy device.SelectionStrategy
	inFlight atomic.Bool
}

func NewConfigurator(backend device.Backend, strategy device.SelectionStrategy) *Configurator {
	return &Configurator{backend: backend, strategy: strategy}
}

// Configure builds a graph for the profile and orientation. Device
// availability failures surface as device.ErrUnavailable; everything
// else is a ConfigError naming the failed step. A missing photo output
// is not fatal, the graph comes back with Photos set to nil.
func (c *Configurator) Configure(ctx context.Context, profile device.QualityProfile, orientation device.Orientation) (*Graph, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		panic("session: configuration bracket reentered")
	}
	defer c.inFlight.Store(false)

	cfg := profile.StreamConfig()
	ctx, span := telemetry.Tracer("camwatch.session").Start(ctx, "camwatch.session.configure")
	span.SetAttributes(telemetry.ConfigureAttributes(profile.String(), string(orientation), cfg.Width, cfg.Height, cfg.FPS)...)
	defer span.End()

	start := time.Now()
	g, err := c.build(ctx, profile, orientation)
	if err != nil {
		metrics.ObserveConfigure("error", time.Since(start))
		span.SetAttributes(telemetry.ErrorAttributes(configErrorType(err))...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.ObserveConfigure("success", time.Since(start))
	span.SetAttributes(telemetry.GraphAttributes(g.ID, g.Device.Path, string(g.Device.Kind))...)
	return g, nil
}

// configErrorType maps a build failure to its span attribute: the
// ConfigError step code, or "unavailable" for device availability.
func configErrorType(err error) string {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, device.ErrUnavailable) {
		return "unavailable"
	}
	return "unknown"
}

func (c *Configurator) build(ctx context.Context, profile device.QualityProfile, orientation device.Orientation) (*Graph, error) {
	logger := log.FromContext(ctx)

	devices, err := c.backend.Devices(ctx)
	if err != nil {
		return nil, &ConfigError{Code: "list_devices", Err: err}
	}
	dev, err := c.strategy.Select(devices)
	if err != nil {
		return nil, fmt.Errorf("select device: %w", err)
	}

	cfg := profile.StreamConfig()
	input, err := c.backend.OpenInput(ctx, dev, cfg)
	if err != nil {
		if errors.Is(err, device.ErrUnavailable) {
			return nil, fmt.Errorf("open %s: %w", dev.Path, err)
		}
		return nil, &ConfigError{Code: "open_input", Err: err}
	}

	frames, err := input.AttachFrameOutput(cfg)
	if err != nil {
		_ = input.Close()
		return nil, &ConfigError{Code: "attach_frame_output", Err: err}
	}

	photos, err := input.AttachPhotoOutput()
	if err != nil {
		metrics.IncPhotoOutputAttachFailure()
		logger.Warn().
			Err(err).
			Str("event", "session.photo_output.unavailable").
			Str(log.FieldDevice, dev.Path).
			Msg("continuing without photo output")
		photos = nil
	}

	input.SetOrientation(orientation)

	if err := input.StartRunning(ctx); err != nil {
		frames.Stop()
		_ = input.Close()
		return nil, &ConfigError{Code: "start_running", Err: err}
	}

	g := &Graph{
		ID:          uuid.NewString(),
		Device:      dev,
		Input:       input,
		Frames:      frames,
		Photos:      photos,
		Profile:     profile,
		Orientation: orientation,
	}
	logger.Info().
		Str("event", "session.graph.built").
		Str(log.FieldGraphID, g.ID).
		Str(log.FieldDevice, dev.Path).
		Str(log.FieldProfile, profile.String()).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)).
		Int(log.FieldFPS, cfg.FPS).
		Msg("capture graph built")
	return g, nil
}

// Teardown releases every resource a graph holds. It tolerates graphs
// that are already partially stopped, so pause and stop paths can both
// funnel through it.
func (c *Configurator) Teardown(g *Graph) {
	if g == nil {
		return
	}
	g.Frames.Stop()
	g.Input.StopRunning()
	_ = g.Input.Close()
}
