// SPDX-License-Identifier: MIT

package pressure

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const publishTimeout = 2 * time.Second

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

// Monitor polls a pressure source and publishes level changes. Only
// edges are published; steady pressure never repeats an event.
type Monitor struct {
	source    Source
	bus       events.Bus
	interval  time.Duration
	high      float64
	emergency float64

	mu    sync.RWMutex
	level Level

	clock clock
}

// NewMonitor classifies samples against the high and emergency
// percentage thresholds.
func NewMonitor(source Source, bus events.Bus, interval time.Duration, high, emergency float64) *Monitor {
	return &Monitor{
		source:    source,
		bus:       bus,
		interval:  interval,
		high:      high,
		emergency: emergency,
		level:     LevelNormal,
		clock:     realClock{},
	}
}

// Level returns the most recently classified level.
func (m *Monitor) Level() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

func (m *Monitor) classify(s Sample) Level {
	switch {
	case s.SomeAvg10 >= m.emergency:
		return LevelEmergency
	case s.SomeAvg10 >= m.high:
		return LevelHigh
	default:
		return LevelNormal
	}
}

// Run polls until the context ends. It always returns nil so an
// errgroup treats monitor shutdown as clean.
func (m *Monitor) Run(ctx context.Context) error {
	logger := log.WithComponent("pressure")

	m.poll(ctx, logger)

	t := m.clock.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			m.poll(ctx, logger)
		}
	}
}

func (m *Monitor) poll(ctx context.Context, logger zerolog.Logger) {
	sample, err := m.source.Read()
	if err != nil {
		// Absent PSI (non-Linux, old kernel) must not spam logs.
		logger.Debug().Err(err).Msg("pressure read failed")
		return
	}

	next := m.classify(sample)

	m.mu.Lock()
	prev := m.level
	m.level = next
	m.mu.Unlock()

	if next == prev {
		return
	}

	metrics.IncPressureEvent(next.String())
	logger.Info().
		Str(log.FieldPressure, next.String()).
		Float64("some_avg10", sample.SomeAvg10).
		Float64("full_avg10", sample.FullAvg10).
		Str("event", "pressure.level.change").
		Msg("memory pressure level changed")

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := m.bus.Publish(pubCtx, events.TopicPressure, events.PressureChange{Level: next.String()}); err != nil {
		logger.Warn().Err(err).Msg("failed to publish pressure change")
	}
}
