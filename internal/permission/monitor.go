// SPDX-License-Identifier: MIT

package permission

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/future"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const publishTimeout = 2 * time.Second

// deniedStablePolls is how many consecutive denied probes the monitor
// tolerates before treating the denial as settled and stopping the
// poll. A later explicit Request still re-probes. SetDeniedWindow
// derives a different count from a configured duration.
const deniedStablePolls = 5

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

// Monitor polls the backend access state while it can still change and
// publishes edges. Once the state is terminal the poll ticker stops
// for good; steady states are never re-published.
type Monitor struct {
	backend  device.Backend
	bus      events.Bus
	interval time.Duration
	hint     HintFunc

	mu           sync.Mutex
	state        device.AccessState
	deniedStreak int
	deniedLimit  int
	pending      *future.Future[device.AccessState]

	clock clock
}

func NewMonitor(backend device.Backend, bus events.Bus, interval time.Duration) *Monitor {
	m := &Monitor{
		backend:     backend,
		bus:         bus,
		interval:    interval,
		state:       device.AccessUndetermined,
		deniedLimit: deniedStablePolls,
		clock:       realClock{},
	}
	m.hint = m.logHint
	return m
}

// SetHint replaces the remediation hint sink. Must be called before
// Run.
func (m *Monitor) SetHint(hint HintFunc) {
	m.hint = hint
}

// SetDeniedWindow sizes the denial detection window. A denial that
// persists for the whole window at the poll interval is treated as
// settled. Must be called before Run.
func (m *Monitor) SetDeniedWindow(window time.Duration) {
	if window <= 0 || m.interval <= 0 {
		return
	}
	polls := int(window / m.interval)
	if polls < 1 {
		polls = 1
	}
	m.mu.Lock()
	m.deniedLimit = polls
	m.mu.Unlock()
}

// State returns the last observed access state.
func (m *Monitor) State() device.AccessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) logHint(state device.AccessState) {
	if hint := RemediationHint(state); hint != "" {
		logger := log.WithComponent("permission")
		logger.Warn().
			Str(log.FieldPermission, state.String()).
			Str("event", "permission.remediation.hint").
			Msg(hint)
	}
}

// Run probes immediately and then on every poll interval until the
// state settles or the context ends. Always returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	logger := log.WithComponent("permission")

	m.probe(ctx, logger)

	var tk ticker
	if !m.pollSettled() {
		tk = m.clock.NewTicker(m.interval)
		defer tk.Stop()
	}

	for {
		var tickCh <-chan time.Time
		if tk != nil {
			tickCh = tk.C()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tickCh:
			m.probe(ctx, logger)
			if m.pollSettled() {
				tk.Stop()
				tk = nil
			}
		}
	}
}

// pollSettled reports whether further polling can change anything.
// Terminal states never flip back, and a denial that survived the
// whole detection window only changes through an explicit Request.
func (m *Monitor) pollSettled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Terminal() || m.deniedStreak >= m.deniedLimit
}

// probe reads the current access state and forwards only changes.
func (m *Monitor) probe(ctx context.Context, logger zerolog.Logger) {
	metrics.IncPermissionPoll()
	next := m.backend.Access(ctx)

	m.mu.Lock()
	prev := m.state
	m.state = next
	if next == device.AccessDenied {
		m.deniedStreak++
	} else {
		m.deniedStreak = 0
	}
	m.mu.Unlock()

	if next == prev {
		return
	}
	m.forwardEdge(ctx, logger, prev, next)
}

func (m *Monitor) forwardEdge(ctx context.Context, logger zerolog.Logger, prev, next device.AccessState) {
	metrics.IncPermissionTransition(prev.String(), next.String())
	logger.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("event", "permission.state.change").
		Msg("device access state changed")

	if next == device.AccessDenied || next == device.AccessRestricted {
		m.hint(next)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := m.bus.Publish(pubCtx, events.TopicPermission, events.PermissionChange{
		From: prev.String(),
		To:   next.String(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to publish permission change")
	}
}

// Request performs the one-shot access request. Concurrent requests
// share a single future, and the future resolves exactly once whatever
// path the request takes.
func (m *Monitor) Request(ctx context.Context) *future.Future[device.AccessState] {
	m.mu.Lock()
	if m.pending != nil {
		f := m.pending
		m.mu.Unlock()
		return f
	}
	f := future.New[device.AccessState]()
	m.pending = f
	m.mu.Unlock()

	go m.serveRequest(ctx, f)
	return f
}

func (m *Monitor) serveRequest(ctx context.Context, f *future.Future[device.AccessState]) {
	logger := log.WithComponent("permission")

	defer func() {
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
	}()

	state, err := m.backend.RequestAccess(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("access request failed")
		f.Resolve(m.State(), err)
		return
	}

	m.mu.Lock()
	prev := m.state
	m.state = state
	if state == device.AccessDenied {
		// An explicit request answered with a denial is authoritative.
		m.deniedStreak = m.deniedLimit
	} else {
		m.deniedStreak = 0
	}
	m.mu.Unlock()

	if state != prev {
		m.forwardEdge(ctx, logger, prev, state)
	}
	f.Resolve(state, nil)
}
