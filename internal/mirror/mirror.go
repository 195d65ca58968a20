// SPDX-License-Identifier: MIT

// Package mirror replicates observable daemon state into Redis so
// dashboards and automations can watch the camera without holding a
// connection to the daemon. The mirror is write-only and best-effort;
// losing Redis never disturbs the capture session.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/frames"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/session"
)

// Keys and channels, all under the camwatch prefix.
const (
	KeyState      = "camwatch:state"
	KeyFrame      = "camwatch:frame"
	ChannelEvents = "camwatch:events"
)

const opTimeout = 2 * time.Second

// Config holds the mirror connection and cadence settings.
type Config struct {
	Addr          string
	Password      string
	DB            int
	FrameInterval time.Duration
	StateTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.FrameInterval <= 0 {
		c.FrameInterval = time.Second
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 30 * time.Second
	}
	return c
}

// stateEvent is the JSON published on the events channel.
type stateEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// Mirror pushes status snapshots, lifecycle events and the latest
// frame into Redis.
type Mirror struct {
	cfg    Config
	client *redis.Client
	bus    events.Bus
	status func() session.Status
	holder *frames.Holder

	suspended     atomic.Bool
	resumePending atomic.Bool

	// lastFrameAt and lastStateAt are only touched by the Run
	// goroutine.
	lastFrameAt time.Time
	lastStateAt time.Time
}

// New connects to Redis and verifies the connection.
func New(cfg Config, bus events.Bus, status func() session.Status, holder *frames.Holder) (*Mirror, error) {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mirror connection failed: %w", err)
	}

	logger := log.WithComponent("mirror")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to state mirror")

	return &Mirror{cfg: cfg, client: client, bus: bus, status: status, holder: holder}, nil
}

// Ping reports mirror connectivity.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// SetSuspended pauses or resumes mirroring. Suspension keeps the
// connection and subscription warm so a later resume picks up on the
// next tick; the mirrored keys simply expire for readers meanwhile.
func (m *Mirror) SetSuspended(v bool) {
	if m.suspended.Swap(v) == v {
		return
	}
	logger := log.WithComponent("mirror")
	if v {
		logger.Info().
			Str("event", "mirror.suspend").
			Msg("state mirroring suspended")
		return
	}
	m.resumePending.Store(true)
	logger.Info().
		Str("event", "mirror.resume").
		Msg("state mirroring resumed")
}

// Close tears down the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// Run mirrors state changes as they happen and frames on a fixed
// cadence until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	logger := log.WithComponent("mirror")

	sub, err := m.bus.Subscribe(ctx, events.TopicState)
	if err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}
	defer func() { _ = sub.Close() }()

	ticker := time.NewTicker(m.cfg.FrameInterval)
	defer ticker.Stop()

	// Seed the state key so readers see something before the first
	// transition.
	m.mirrorStatus(ctx, logger)

	stateCh := sub.C()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "mirror.stop").Msg("state mirror stopped")
			return nil
		case msg, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
			sc, ok := msg.(events.StateChange)
			if !ok {
				continue
			}
			m.mirrorStatus(ctx, logger)
			m.publishEvent(ctx, logger, sc)
		case <-ticker.C:
			m.mirrorFrame(ctx, logger)
			// Re-seed after a resume, and refresh through long steady
			// states so the state key does not expire between
			// transitions.
			if m.resumePending.Swap(false) || time.Since(m.lastStateAt) >= m.cfg.StateTTL/2 {
				m.mirrorStatus(ctx, logger)
			}
		}
	}
}

func (m *Mirror) mirrorStatus(ctx context.Context, logger zerolog.Logger) {
	if m.suspended.Load() {
		return
	}
	m.lastStateAt = time.Now()

	data, err := json.Marshal(m.status())
	if err != nil {
		metrics.IncMirrorPublish("error")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.client.Set(opCtx, KeyState, data, m.cfg.StateTTL).Err(); err != nil {
		metrics.IncMirrorPublish("error")
		logger.Warn().Err(err).Str("event", "mirror.state_failed").Msg("state mirror write failed")
		return
	}
	metrics.IncMirrorPublish("success")
}

func (m *Mirror) publishEvent(ctx context.Context, logger zerolog.Logger, sc events.StateChange) {
	if m.suspended.Load() {
		return
	}

	payload, err := json.Marshal(stateEvent{
		From:      sc.From,
		To:        sc.To,
		Reason:    sc.Reason,
		SessionID: sc.SessionID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		metrics.IncMirrorPublish("error")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.client.Publish(opCtx, ChannelEvents, payload).Err(); err != nil {
		metrics.IncMirrorPublish("error")
		logger.Warn().Err(err).Str("event", "mirror.event_failed").Msg("event publish failed")
		return
	}
	metrics.IncMirrorPublish("success")
}

// mirrorFrame writes the latest frame when it is newer than the last
// mirrored one. The short TTL lets stale frames vanish instead of
// presenting a frozen image as live.
func (m *Mirror) mirrorFrame(ctx context.Context, logger zerolog.Logger) {
	if m.suspended.Load() {
		return
	}

	snap, ok := m.holder.Latest()
	if !ok || !snap.CapturedAt.After(m.lastFrameAt) {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ttl := 3 * m.cfg.FrameInterval
	if err := m.client.Set(opCtx, KeyFrame, snap.Data, ttl).Err(); err != nil {
		metrics.IncMirrorPublish("error")
		logger.Warn().Err(err).Str("event", "mirror.frame_failed").Msg("frame mirror write failed")
		return
	}
	m.lastFrameAt = snap.CapturedAt
	metrics.IncMirrorPublish("success")
}
