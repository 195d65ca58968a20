// SPDX-License-Identifier: MIT

package photo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/pressure"
	"github.com/ManuGH/camwatch/internal/storage"
	"github.com/ManuGH/camwatch/internal/telemetry"
)

const (
	publishTimeout = 2 * time.Second

	qualityNormal  = 85
	qualitySubdued = 60

	profileNormal  = "normal"
	profileSubdued = "subdued"
)

// SessionView is the slice of controller state the coordinator reads.
// All three are safe to call from any goroutine.
type SessionView interface {
	Running() bool
	SessionID() string
	// PhotoOutput returns nil when the output could not be attached.
	PhotoOutput() device.PhotoOutput
}

// LevelSource reports the current memory pressure band.
type LevelSource interface {
	Level() pressure.Level
}

// Coordinator serves capture requests without ever touching the
// session run loop. Each request resolves its own buffered channel
// exactly once.
type Coordinator struct {
	session   SessionView
	store     storage.Store
	index     storage.Index
	bus       events.Bus
	levels    LevelSource
	processor Processor

	qualityNormal  int
	qualitySubdued int
}

// NewCoordinator wires the capture path. levels may be nil, which pins
// the quality to the normal profile.
func NewCoordinator(session SessionView, store storage.Store, index storage.Index, bus events.Bus, levels LevelSource) *Coordinator {
	return &Coordinator{
		session:        session,
		store:          store,
		index:          index,
		bus:            bus,
		levels:         levels,
		processor:      jpegProcessor{},
		qualityNormal:  qualityNormal,
		qualitySubdued: qualitySubdued,
	}
}

// SetProcessor replaces the default JPEG processor. Must be called
// before the first Capture.
func (c *Coordinator) SetProcessor(p Processor) {
	c.processor = p
}

// SetQualityTiers overrides the per-tier JPEG defaults. Values outside
// [1,100] keep the built-in tier. Must be called before the first
// Capture.
func (c *Coordinator) SetQualityTiers(normal, subdued int) {
	if normal >= 1 && normal <= 100 {
		c.qualityNormal = normal
	}
	if subdued >= 1 && subdued <= 100 {
		c.qualitySubdued = subdued
	}
}

// Capture requests one still. The returned channel is buffered and
// receives exactly one Result. Requests while the session is not
// Running are refused immediately and leave all state untouched.
func (c *Coordinator) Capture(ctx context.Context, settings Settings) <-chan Result {
	result := make(chan Result, 1)

	if !c.session.Running() {
		metrics.ObservePhotoCapture("refused", 0)
		result <- Result{Err: ErrSessionNotRunning}
		return result
	}

	out := c.session.PhotoOutput()
	if out == nil {
		metrics.ObservePhotoCapture("error", 0)
		logger := log.WithComponent("photo")
		logger.Warn().
			Str("event", "photo.capture.no_output").
			Msg("capture requested but no photo output is attached")
		result <- Result{Err: fmt.Errorf("%w: no photo output attached", ErrCaptureFailed)}
		return result
	}

	go c.serve(ctx, out, settings, result)
	return result
}

func (c *Coordinator) serve(ctx context.Context, out device.PhotoOutput, settings Settings, result chan<- Result) {
	ctx, span := telemetry.Tracer("camwatch.photo").Start(ctx, "camwatch.photo.capture")
	span.SetAttributes(telemetry.SessionAttributes(c.session.SessionID(), "running")...)
	defer span.End()

	start := time.Now()
	logger := log.WithComponent("photo")

	rec, err := c.capture(ctx, out, settings)
	if err != nil {
		metrics.ObservePhotoCapture("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).
			Str("event", "photo.capture.failed").
			Str(log.FieldSessionID, c.session.SessionID()).
			Msg("photo capture failed")
		result <- Result{Err: err}
		return
	}

	metrics.ObservePhotoCapture("success", time.Since(start))
	span.SetAttributes(telemetry.PhotoAttributes(rec.Name, rec.Bytes, rec.Quality)...)
	logger.Info().
		Str("event", "photo.capture.done").
		Str(log.FieldSessionID, c.session.SessionID()).
		Str("name", rec.Name).
		Int("bytes", rec.Bytes).
		Str("profile", rec.Profile).
		Msg("photo saved")
	result <- Result{Record: rec}
}

func (c *Coordinator) capture(ctx context.Context, out device.PhotoOutput, settings Settings) (storage.Record, error) {
	quality, profile := c.pickQuality(settings)

	ps := device.PhotoSettings{
		Quality:     quality,
		Orientation: settings.Orientation,
	}
	// Prefer the output's reported maximum still size; outputs that do
	// not report one get the best-effort flag instead.
	if w, h, ok := out.MaxDimensions(); ok {
		ps.MaxWidth, ps.MaxHeight = w, h
	} else {
		ps.HighResolution = true
	}

	raw, err := out.Capture(ctx, ps)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	data, width, height, err := c.processor.Process(ctx, raw, quality)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	at := raw.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}
	id := uuid.NewString()
	name := fmt.Sprintf("photo-%s-%s.jpg", at.UTC().Format("20060102T150405"), id)

	if err := c.store.Save(ctx, data, name); err != nil {
		return storage.Record{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	rec := storage.Record{
		ID:        id,
		Name:      name,
		Bytes:     len(data),
		Width:     width,
		Height:    height,
		Profile:   profile,
		Quality:   quality,
		CreatedAt: at,
	}
	if err := c.index.Put(ctx, rec); err != nil {
		return storage.Record{}, fmt.Errorf("%w: index photo: %v", ErrCaptureFailed, err)
	}

	c.publishSaved(ctx, rec)
	return rec, nil
}

// pickQuality derives the JPEG quality from memory pressure, with an
// explicit Settings.Quality winning over the tier default.
func (c *Coordinator) pickQuality(settings Settings) (int, string) {
	profile := profileNormal
	quality := c.qualityNormal
	if c.levels != nil {
		switch c.levels.Level() {
		case pressure.LevelHigh, pressure.LevelEmergency:
			profile = profileSubdued
			quality = c.qualitySubdued
		}
	}
	if settings.Quality > 0 {
		quality = settings.Quality
		if quality > 100 {
			quality = 100
		}
	}
	return quality, profile
}

func (c *Coordinator) publishSaved(ctx context.Context, rec storage.Record) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := c.bus.Publish(pubCtx, events.TopicPhoto, events.PhotoSaved{
		Name:      rec.Name,
		Bytes:     int64(rec.Bytes),
		SessionID: c.session.SessionID(),
	})
	if err != nil {
		logger := log.WithComponent("photo")
		logger.Warn().Err(err).Msg("failed to publish photo event")
	}
}
