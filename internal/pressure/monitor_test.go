// SPDX-License-Identifier: MIT

package pressure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camwatch/internal/events"
)

type mockClock struct {
	mu           sync.Mutex
	now          time.Time
	latestTicker *mockTicker
}

func (m *mockClock) Now() time.Time { m.mu.Lock(); defer m.mu.Unlock(); return m.now }
func (m *mockClock) NewTicker(d time.Duration) ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestTicker = &mockTicker{c: make(chan time.Time)}
	return m.latestTicker
}

func (m *mockClock) ticker(t *testing.T) *mockTicker {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		tk := m.latestTicker
		m.mu.Unlock()
		if tk != nil {
			return tk
		}
		if time.Now().After(deadline) {
			t.Fatal("ticker never created")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type mockTicker struct {
	c chan time.Time
}

func (m *mockTicker) C() <-chan time.Time { return m.c }
func (m *mockTicker) Stop()               {}

func drainPressureEvents(sub events.Subscriber) []string {
	var levels []string
	for {
		select {
		case msg := <-sub.C():
			if change, ok := msg.(events.PressureChange); ok {
				levels = append(levels, change.Level)
			}
		case <-time.After(100 * time.Millisecond):
			return levels
		}
	}
}

func TestMonitorPublishesEdgesOnly(t *testing.T) {
	source := &FakeSource{Samples: []Sample{
		{SomeAvg10: 1},  // normal (initial poll)
		{SomeAvg10: 15}, // high
		{SomeAvg10: 16}, // still high: no event
		{SomeAvg10: 55}, // emergency
		{SomeAvg10: 2},  // back to normal
	}}
	bus := events.NewMemoryBus()
	sub, err := bus.Subscribe(context.Background(), events.TopicPressure)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	m := NewMonitor(source, bus, 5*time.Second, 10, 40)
	clock := &mockClock{now: time.Now()}
	m.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	tk := clock.ticker(t)
	for i := 0; i < 4; i++ {
		tk.c <- clock.Now()
	}

	require.Eventually(t, func() bool {
		return m.Level() == LevelNormal
	}, time.Second, 10*time.Millisecond)

	levels := drainPressureEvents(sub)
	require.Equal(t, []string{"high", "emergency", "normal"}, levels)

	cancel()
	require.NoError(t, <-done)
}

func TestMonitorReadErrorKeepsLevel(t *testing.T) {
	source := &FakeSource{Samples: []Sample{{SomeAvg10: 20}}}
	bus := events.NewMemoryBus()

	m := NewMonitor(source, bus, time.Second, 10, 40)
	clock := &mockClock{now: time.Now()}
	m.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	tk := clock.ticker(t)
	require.Eventually(t, func() bool {
		return m.Level() == LevelHigh
	}, time.Second, 10*time.Millisecond)

	source.mu.Lock()
	source.Err = errors.New("psi gone")
	source.mu.Unlock()

	tk.c <- clock.Now()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, LevelHigh, m.Level(), "failed read must not reset the level")

	cancel()
	require.NoError(t, <-done)
}

func TestMonitorInitialHighPublishes(t *testing.T) {
	source := &FakeSource{Samples: []Sample{{SomeAvg10: 80}}}
	bus := events.NewMemoryBus()
	sub, err := bus.Subscribe(context.Background(), events.TopicPressure)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	m := NewMonitor(source, bus, time.Second, 10, 40)
	m.clock = &mockClock{now: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case msg := <-sub.C():
		change, ok := msg.(events.PressureChange)
		require.True(t, ok)
		require.Equal(t, "emergency", change.Level)
	case <-time.After(time.Second):
		t.Fatal("initial poll never published")
	}

	cancel()
	require.NoError(t, <-done)
}
