// SPDX-License-Identifier: MIT

// Package health aggregates component checks behind the liveness and
// readiness endpoints. Liveness always answers 200 while the process
// runs; readiness reflects whether the daemon can actually capture,
// journal and store.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/session"
)

// Status classifies a component or the aggregate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one named component check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs the registered checks and serves the probe endpoints.
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now()}
}

// RegisterChecker adds a component check. Not safe after serving starts.
func (m *Manager) RegisterChecker(c Checker) {
	m.checkers = append(m.checkers, c)
}

// collect runs every checker and folds the results into an aggregate
// status. Unhealthy dominates degraded dominates healthy.
func (m *Manager) collect(ctx context.Context) (map[string]CheckResult, Status) {
	if len(m.checkers) == 0 {
		return nil, StatusHealthy
	}
	checks := make(map[string]CheckResult, len(m.checkers))
	agg := StatusHealthy
	for _, c := range m.checkers {
		res := c.Check(ctx)
		checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			agg = StatusUnhealthy
		case StatusDegraded:
			if agg == StatusHealthy {
				agg = StatusDegraded
			}
		}
	}
	return checks, agg
}

// Health is the liveness view. The process being able to answer is the
// signal; component states are informational and only included when
// verbose.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose {
		resp.Checks, resp.Status = m.collect(ctx)
	}
	return resp
}

// Ready reports whether the daemon should receive traffic. Any
// unhealthy component makes it not ready; degraded components keep it
// ready but visible.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checks, agg := m.collect(ctx)
	return ReadinessResponse{
		Ready:     agg != StatusUnhealthy,
		Status:    agg,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ServeHealth handles the liveness endpoint. Always 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles the readiness endpoint. 503 when not ready.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}
	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// DeviceChecker reports capture device presence.
type DeviceChecker struct {
	backend device.Backend
}

func NewDeviceChecker(backend device.Backend) *DeviceChecker {
	return &DeviceChecker{backend: backend}
}

func (c *DeviceChecker) Name() string { return "capture_device" }

func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	devices, err := c.backend.Devices(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if len(devices) == 0 {
		// The daemon still serves status and history without a camera.
		return CheckResult{Status: StatusDegraded, Message: "no capture devices present"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d device(s) available", len(devices))}
}

// StreamChecker verifies frames keep flowing while a session runs. A
// stopped or paused session is healthy; only a running session with a
// stale frame degrades.
type StreamChecker struct {
	status func() session.Status
	maxAge time.Duration
}

func NewStreamChecker(status func() session.Status, maxAge time.Duration) *StreamChecker {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &StreamChecker{status: status, maxAge: maxAge}
}

func (c *StreamChecker) Name() string { return "frame_stream" }

func (c *StreamChecker) Check(ctx context.Context) CheckResult {
	st := c.status()
	if st.State != session.StateRunning {
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("session %s", st.State)}
	}
	last := st.Health.LastFrameAt
	if last.IsZero() {
		if time.Since(st.Health.StartedAt) > c.maxAge {
			return CheckResult{Status: StatusDegraded, Message: "no frames since session start"}
		}
		return CheckResult{Status: StatusHealthy, Message: "warming up"}
	}
	if age := time.Since(last); age > c.maxAge {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("last frame %s ago", age.Round(time.Second))}
	}
	return CheckResult{Status: StatusHealthy, Message: "frames flowing"}
}

// Pinger is any dependency with a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger as a named check. The journal and the
// Redis mirror both plug in here.
type PingChecker struct {
	name   string
	pinger Pinger
}

func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.pinger.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// StorageChecker verifies the photo directory stays writable.
type StorageChecker struct {
	dir string
}

func NewStorageChecker(dir string) *StorageChecker {
	return &StorageChecker{dir: dir}
}

func (c *StorageChecker) Name() string { return "photo_storage" }

func (c *StorageChecker) Check(ctx context.Context) CheckResult {
	if c.dir == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured"}
	}
	probe := filepath.Join(c.dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}
