// SPDX-License-Identifier: MIT

package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/frames"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type statusStub struct {
	mu sync.Mutex
	st session.Status
}

func (s *statusStub) get() session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *statusStub) set(st session.Status) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

type harness struct {
	t      *testing.T
	mr     *miniredis.Miniredis
	bus    *events.MemoryBus
	holder *frames.Holder
	stub   *statusStub
	m      *Mirror
}

func newHarness(t *testing.T) *harness {
	return newHarnessTTL(t, 5*time.Second)
}

func newHarnessTTL(t *testing.T, stateTTL time.Duration) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	bus := events.NewMemoryBus()
	holder := frames.NewHolder()
	stub := &statusStub{st: session.Status{State: session.StateStopped}}

	m, err := New(Config{
		Addr:          mr.Addr(),
		FrameInterval: 20 * time.Millisecond,
		StateTTL:      stateTTL,
	}, bus, stub.get, holder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("mirror did not stop")
		}
		require.NoError(t, m.Close())
	})

	require.Eventually(t, func() bool {
		return bus.SubscriberCount(events.TopicState) == 1
	}, 2*time.Second, time.Millisecond)

	return &harness{t: t, mr: mr, bus: bus, holder: holder, stub: stub, m: m}
}

func (h *harness) publish(topic string, msg events.Message) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(h.t, h.bus.Publish(ctx, topic, msg))
}

func (h *harness) mirroredStatus() (session.Status, bool) {
	val, err := h.mr.Get(KeyState)
	if err != nil {
		return session.Status{}, false
	}
	var st session.Status
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return session.Status{}, false
	}
	return st, true
}

func TestMirrorSeedsStateOnStart(t *testing.T) {
	h := newHarness(t)

	require.Eventually(t, func() bool {
		st, ok := h.mirroredStatus()
		return ok && st.State == session.StateStopped
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMirrorWritesStateOnChange(t *testing.T) {
	before := metrics.GetMirrorPublishes("success")
	h := newHarness(t)

	h.stub.set(session.Status{State: session.StateRunning, SessionID: "s1"})
	h.publish(events.TopicState, events.StateChange{
		From:      "stopped",
		To:        "running",
		SessionID: "s1",
	})

	require.Eventually(t, func() bool {
		st, ok := h.mirroredStatus()
		return ok && st.State == session.StateRunning && st.SessionID == "s1"
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 5*time.Second, h.mr.TTL(KeyState))
	require.GreaterOrEqual(t, metrics.GetMirrorPublishes("success")-before, 2.0)
}

func TestMirrorPublishesLifecycleEvents(t *testing.T) {
	h := newHarness(t)

	client := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pubsub := client.Subscribe(ctx, ChannelEvents)
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	h.publish(events.TopicState, events.StateChange{
		From:      "running",
		To:        "paused",
		Reason:    "pressure_high",
		SessionID: "s2",
	})

	select {
	case msg := <-pubsub.Channel():
		var ev stateEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		require.Equal(t, "running", ev.From)
		require.Equal(t, "paused", ev.To)
		require.Equal(t, "pressure_high", ev.Reason)
		require.Equal(t, "s2", ev.SessionID)
		require.False(t, ev.At.IsZero())
	case <-ctx.Done():
		t.Fatal("no lifecycle event received")
	}
}

func TestMirrorFramesFollowHolder(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	h.holder.Store(frames.Snapshot{
		Data:        []byte("frame-1"),
		Seq:         1,
		CapturedAt:  now,
		ContentType: "image/jpeg",
	})

	require.Eventually(t, func() bool {
		val, err := h.mr.Get(KeyFrame)
		return err == nil && val == "frame-1"
	}, 2*time.Second, 5*time.Millisecond)
	require.Greater(t, h.mr.TTL(KeyFrame), time.Duration(0))

	h.holder.Store(frames.Snapshot{
		Data:        []byte("frame-2"),
		Seq:         2,
		CapturedAt:  now.Add(time.Second),
		ContentType: "image/jpeg",
	})

	require.Eventually(t, func() bool {
		val, err := h.mr.Get(KeyFrame)
		return err == nil && val == "frame-2"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMirrorSuspendStopsWritesUntilResume(t *testing.T) {
	h := newHarness(t)

	require.Eventually(t, func() bool {
		_, ok := h.mirroredStatus()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	h.m.SetSuspended(true)
	h.mr.Del(KeyState)
	h.mr.Del(KeyFrame)

	h.stub.set(session.Status{State: session.StateRunning, SessionID: "s7"})
	h.publish(events.TopicState, events.StateChange{From: "stopped", To: "running", SessionID: "s7"})
	h.holder.Store(frames.Snapshot{
		Data:        []byte("held-back"),
		Seq:         1,
		CapturedAt:  time.Now(),
		ContentType: "image/jpeg",
	})

	require.Never(t, func() bool {
		_, stateBack := h.mirroredStatus()
		_, frameErr := h.mr.Get(KeyFrame)
		return stateBack || frameErr == nil
	}, 300*time.Millisecond, 20*time.Millisecond)

	// Resume re-seeds the state key on the next tick and the held
	// frame follows, without waiting for another transition.
	h.m.SetSuspended(false)
	require.Eventually(t, func() bool {
		st, ok := h.mirroredStatus()
		return ok && st.State == session.StateRunning && st.SessionID == "s7"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		val, err := h.mr.Get(KeyFrame)
		return err == nil && val == "held-back"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMirrorStateKeepalive(t *testing.T) {
	h := newHarnessTTL(t, 200*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := h.mirroredStatus()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Nothing transitions, yet the ticker refresh restores the key.
	h.mr.Del(KeyState)
	require.Eventually(t, func() bool {
		_, ok := h.mirroredStatus()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMirrorPing(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.m.Ping(ctx))
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	bus := events.NewMemoryBus()
	_, err := New(Config{Addr: addr}, bus, func() session.Status { return session.Status{} }, frames.NewHolder())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mirror connection failed")
}
