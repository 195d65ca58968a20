// SPDX-License-Identifier: MIT

package motion

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const (
	publishTimeout = 2 * time.Second
	// watchdogInterval is the idle check cadence, independent of the
	// sample rate.
	watchdogInterval = time.Second
	// orientationStableSamples is how many consecutive identical
	// readings a new orientation needs before it is adopted.
	orientationStableSamples = 3
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Detector samples the accelerometer, tracks the last time the device
// moved and raises idle timeouts. Activity is published only on the
// idle-to-active edge; idle timeouts fire once per idle episode.
type Detector struct {
	source   Source
	bus      events.Bus
	interval time.Duration

	mu             sync.Mutex
	threshold      float64
	idleTimeout    time.Duration
	lastActivityAt time.Time
	idleNotified   bool
	orientation    device.Orientation
	candidate      device.Orientation
	candidateCount int

	clock clock
}

// NewDetector samples at sampleRateHz and declares idleness after
// idleTimeout without a reading above threshold (g units).
func NewDetector(source Source, bus events.Bus, sampleRateHz int, threshold float64, idleTimeout time.Duration) *Detector {
	if sampleRateHz < 1 {
		sampleRateHz = 1
	}
	return &Detector{
		source:      source,
		bus:         bus,
		interval:    time.Second / time.Duration(sampleRateHz),
		threshold:   threshold,
		idleTimeout: idleTimeout,
		orientation: device.OrientationUnknown,
		clock:       realClock{},
	}
}

// Retune swaps the activity threshold and idle window at runtime. The
// next sample and idle check use the new values; an idle episode that
// already fired is not re-raised.
func (d *Detector) Retune(threshold float64, idleTimeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
	d.idleTimeout = idleTimeout
}

// LastActivity returns when the device last moved. Before any motion
// it is the detector start time, so a fresh start never counts as
// already idle.
func (d *Detector) LastActivity() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivityAt
}

// Idle reports whether an idle timeout has fired without motion since.
func (d *Detector) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleNotified
}

// Orientation returns the settled device orientation.
func (d *Detector) Orientation() device.Orientation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orientation
}

// Run samples until the context ends. It always returns nil so an
// errgroup treats detector shutdown as clean.
func (d *Detector) Run(ctx context.Context) error {
	logger := log.WithComponent("motion")

	d.mu.Lock()
	d.lastActivityAt = d.clock.Now()
	d.mu.Unlock()

	sampleTicker := d.clock.NewTicker(d.interval)
	defer sampleTicker.Stop()
	watchdog := d.clock.NewTicker(watchdogInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sampleTicker.C():
			d.sample(ctx, logger)
		case <-watchdog.C():
			d.checkIdle(ctx, logger)
		}
	}
}

func (d *Detector) sample(ctx context.Context, logger zerolog.Logger) {
	v, err := d.source.Read()
	if err != nil {
		logger.Debug().Err(err).Msg("accelerometer read failed")
		return
	}

	now := d.clock.Now()
	var wokeFromIdle bool

	d.mu.Lock()
	active := v.Magnitude() > d.threshold
	if active {
		d.lastActivityAt = now
		wokeFromIdle = d.idleNotified
		d.idleNotified = false
	}
	orientationChanged := d.trackOrientationLocked(orientationFromVec(v))
	newOrientation := d.orientation
	d.mu.Unlock()

	metrics.IncMotionSample(active)

	if wokeFromIdle {
		logger.Info().
			Str("event", "motion.activity.resumed").
			Msg("motion resumed after idle")
		d.publish(ctx, logger, events.TopicMotion, events.MotionActivity{At: now})
	}
	if orientationChanged {
		logger.Info().
			Str(log.FieldOrientation, newOrientation.String()).
			Str("event", "motion.orientation.change").
			Msg("device orientation changed")
		d.publish(ctx, logger, events.TopicOrientation, events.OrientationChange{Orientation: newOrientation.String()})
	}
}

// trackOrientationLocked debounces orientation flips. Unknown readings
// (device flat) never overwrite a settled orientation.
func (d *Detector) trackOrientationLocked(o device.Orientation) bool {
	if o == device.OrientationUnknown || o == d.orientation {
		d.candidateCount = 0
		return false
	}
	if o != d.candidate {
		d.candidate = o
		d.candidateCount = 1
		return false
	}
	d.candidateCount++
	if d.candidateCount < orientationStableSamples {
		return false
	}
	d.orientation = o
	d.candidateCount = 0
	return true
}

func (d *Detector) checkIdle(ctx context.Context, logger zerolog.Logger) {
	now := d.clock.Now()

	d.mu.Lock()
	idleFor := now.Sub(d.lastActivityAt)
	fire := !d.idleNotified && idleFor >= d.idleTimeout
	if fire {
		d.idleNotified = true
	}
	d.mu.Unlock()

	if !fire {
		return
	}

	metrics.IncIdleTimeout()
	logger.Info().
		Dur("idle_for", idleFor).
		Str("event", "motion.idle.timeout").
		Msg("no motion within idle window")
	d.publish(ctx, logger, events.TopicMotion, events.IdleTimeout{IdleFor: idleFor})
}

func (d *Detector) publish(ctx context.Context, logger zerolog.Logger, topic string, msg events.Message) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := d.bus.Publish(pubCtx, topic, msg); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish motion event")
	}
}
