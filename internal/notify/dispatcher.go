// SPDX-License-Identifier: MIT

// Package notify delivers session events to configured webhook targets.
// Deliveries run off the bus consumer so a slow receiver never stalls
// event fanout inside the daemon.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/platform/httpx"
	platformnet "github.com/ManuGH/camwatch/internal/platform/net"
)

const (
	queueDepth      = 128
	deliveryWorkers = 2
	maxRetries      = 2
)

// Event is the JSON body posted to each target.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Photo     string    `json:"photo,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
}

// Config controls webhook delivery.
type Config struct {
	Targets      []string
	AllowPrivate bool
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Dispatcher fans session events out to webhook targets.
type Dispatcher struct {
	bus    events.Bus
	client *http.Client

	mu           sync.Mutex
	targets      []string
	allowPrivate bool

	// backoffBase spaces retries; tests shrink it.
	backoffBase time.Duration
}

func NewDispatcher(cfg Config, bus events.Bus) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		bus:          bus,
		client:       httpx.NewClient(cfg.Timeout),
		targets:      cfg.Targets,
		allowPrivate: cfg.AllowPrivate,
		backoffBase:  500 * time.Millisecond,
	}
}

// SetTargets replaces the delivery target list. Events already queued
// deliver against whichever list is current when a worker picks them
// up.
func (d *Dispatcher) SetTargets(targets []string, allowPrivate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append([]string(nil), targets...)
	d.allowPrivate = allowPrivate
}

// snapshot returns the current list. Callers must not mutate it;
// SetTargets replaces the slice wholesale.
func (d *Dispatcher) snapshot() ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets, d.allowPrivate
}

// Run consumes state and photo events until ctx is done. The target
// list may start empty; a config reload can install targets later, so
// the subscriptions stay up either way.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger := log.WithComponent("notify")
	ctx = log.WithContext(ctx, logger)

	stateSub, err := d.bus.Subscribe(ctx, events.TopicState)
	if err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}
	defer func() { _ = stateSub.Close() }()

	photoSub, err := d.bus.Subscribe(ctx, events.TopicPhoto)
	if err != nil {
		return fmt.Errorf("subscribe photo: %w", err)
	}
	defer func() { _ = photoSub.Close() }()

	queue := make(chan Event, queueDepth)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < deliveryWorkers; i++ {
		g.Go(func() error {
			return d.worker(gctx, logger, queue)
		})
	}

	targets, _ := d.snapshot()
	logger.Info().
		Str("event", "notify.start").
		Int("targets", len(targets)).
		Msg("webhook dispatcher running")

	stateCh := stateSub.C()
	photoCh := photoSub.C()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
			if sc, ok := msg.(events.StateChange); ok {
				d.enqueue(logger, queue, Event{
					Type:      "state_change",
					Timestamp: time.Now().UTC(),
					SessionID: sc.SessionID,
					From:      sc.From,
					To:        sc.To,
					Reason:    sc.Reason,
				})
			}
		case msg, ok := <-photoCh:
			if !ok {
				photoCh = nil
				continue
			}
			if ps, ok := msg.(events.PhotoSaved); ok {
				d.enqueue(logger, queue, Event{
					Type:      "photo_saved",
					Timestamp: time.Now().UTC(),
					SessionID: ps.SessionID,
					Photo:     ps.Name,
					Bytes:     ps.Bytes,
				})
			}
		}
	}

	close(queue)
	_ = g.Wait()
	logger.Info().Str("event", "notify.stop").Msg("webhook dispatcher stopped")
	return nil
}

func (d *Dispatcher) enqueue(logger zerolog.Logger, queue chan<- Event, ev Event) {
	select {
	case queue <- ev:
	default:
		metrics.IncWebhookDelivery("dropped")
		logger.Warn().
			Str("event", "notify.queue_full").
			Str("type", ev.Type).
			Msg("webhook queue full, event dropped")
	}
}

func (d *Dispatcher) worker(ctx context.Context, logger zerolog.Logger, queue <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-queue:
			if !ok {
				return nil
			}
			targets, allowPrivate := d.snapshot()
			for _, target := range targets {
				d.deliver(ctx, logger, target, ev, allowPrivate)
			}
		}
	}
}

// deliver posts one event to one target. Network errors and 5xx
// responses retry with quadratic backoff; 4xx responses are treated as
// permanent.
func (d *Dispatcher) deliver(ctx context.Context, logger zerolog.Logger, target string, ev Event, allowPrivate bool) {
	policy := platformnet.WebhookPolicy{AllowPrivate: allowPrivate}
	normalized, err := platformnet.ValidateWebhookURL(ctx, target, policy)
	if err != nil {
		metrics.IncWebhookDelivery("rejected")
		logger.Warn().
			Err(err).
			Str("event", "notify.target_rejected").
			Str("target", platformnet.SanitizeURL(target)).
			Msg("webhook target rejected")
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		metrics.IncWebhookDelivery("error")
		logger.Error().Err(err).Str("event", "notify.encode_failed").Msg("webhook payload encode failed")
		return
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * d.backoffBase
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.IncWebhookDelivery("error")
				return
			}
		}

		retry, err := d.post(ctx, normalized, body)
		if err == nil {
			metrics.IncWebhookDelivery("success")
			logger.Debug().
				Str("event", "notify.delivered").
				Str("type", ev.Type).
				Str("target", platformnet.SanitizeURL(normalized)).
				Msg("webhook delivered")
			return
		}
		lastErr = err
		if !retry {
			break
		}
	}

	metrics.IncWebhookDelivery("error")
	logger.Warn().
		Err(lastErr).
		Str("event", "notify.delivery_failed").
		Str("type", ev.Type).
		Str("target", platformnet.SanitizeURL(normalized)).
		Msg("webhook delivery failed")
}

// post sends one request. The bool reports whether the failure is
// retryable.
func (d *Dispatcher) post(ctx context.Context, target string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "camwatch-webhook/1")

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}
