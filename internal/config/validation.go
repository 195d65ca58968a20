// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"
	"time"

	platformnet "github.com/ManuGH/camwatch/internal/platform/net"
)

// Validate checks the fully merged configuration. It returns the first
// violation found; callers keep the previous configuration on error.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	switch cfg.Device.Backend {
	case "v4l2", "fake":
	default:
		return fmt.Errorf("device.backend must be \"v4l2\" or \"fake\", got %q", cfg.Device.Backend)
	}
	switch cfg.Device.Strategy {
	case "prefer-external", "prefer-integrated":
	default:
		return fmt.Errorf("device.strategy must be \"prefer-external\" or \"prefer-integrated\", got %q", cfg.Device.Strategy)
	}

	if cfg.Session.MaxAge < time.Minute {
		return fmt.Errorf("session.max_age must be at least 1m, got %s", cfg.Session.MaxAge)
	}
	if cfg.Session.PermissionPollInterval < 500*time.Millisecond {
		return fmt.Errorf("session.permission_poll_interval must be at least 500ms, got %s", cfg.Session.PermissionPollInterval)
	}
	if cfg.Session.DeniedWindow <= 0 {
		return fmt.Errorf("session.denied_window must be positive, got %s", cfg.Session.DeniedWindow)
	}

	switch cfg.Motion.Source {
	case "iio", "none":
	default:
		return fmt.Errorf("motion.source must be \"iio\" or \"none\", got %q", cfg.Motion.Source)
	}
	if cfg.Motion.SampleRateHz < 1 || cfg.Motion.SampleRateHz > 100 {
		return fmt.Errorf("motion.sample_rate_hz must be within [1,100], got %d", cfg.Motion.SampleRateHz)
	}
	if cfg.Motion.Threshold < 1.0 {
		return fmt.Errorf("motion.threshold must be >= 1.0 (gravity-normalized), got %g", cfg.Motion.Threshold)
	}
	if cfg.Motion.IdleTimeout < 5*time.Second {
		return fmt.Errorf("motion.idle_timeout must be at least 5s, got %s", cfg.Motion.IdleTimeout)
	}

	if cfg.Photo.Quality < 1 || cfg.Photo.Quality > 100 {
		return fmt.Errorf("photo.quality must be within [1,100], got %d", cfg.Photo.Quality)
	}
	if cfg.Photo.QualityConstrained < 1 || cfg.Photo.QualityConstrained > 100 {
		return fmt.Errorf("photo.quality_constrained must be within [1,100], got %d", cfg.Photo.QualityConstrained)
	}
	if cfg.Photo.QualityConstrained > cfg.Photo.Quality {
		return fmt.Errorf("photo.quality_constrained (%d) must not exceed photo.quality (%d)",
			cfg.Photo.QualityConstrained, cfg.Photo.Quality)
	}

	switch cfg.Index.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("index.backend must be \"memory\" or \"badger\", got %q", cfg.Index.Backend)
	}

	switch cfg.Pressure.Source {
	case "psi", "none":
	default:
		return fmt.Errorf("pressure.source must be \"psi\" or \"none\", got %q", cfg.Pressure.Source)
	}
	if cfg.Pressure.PollInterval < time.Second {
		return fmt.Errorf("pressure.poll_interval must be at least 1s, got %s", cfg.Pressure.PollInterval)
	}
	if cfg.Pressure.High < 0 || cfg.Pressure.High > 100 {
		return fmt.Errorf("pressure.high must be within [0,100], got %g", cfg.Pressure.High)
	}
	if cfg.Pressure.Emergency < 0 || cfg.Pressure.Emergency > 100 {
		return fmt.Errorf("pressure.emergency must be within [0,100], got %g", cfg.Pressure.Emergency)
	}
	if cfg.Pressure.Emergency <= cfg.Pressure.High {
		return fmt.Errorf("pressure.emergency (%g) must exceed pressure.high (%g)",
			cfg.Pressure.Emergency, cfg.Pressure.High)
	}

	if cfg.Mirror.Enabled && strings.TrimSpace(cfg.Mirror.Addr) == "" {
		return fmt.Errorf("mirror.addr must be set when mirror is enabled")
	}

	for _, target := range cfg.Webhooks.Targets {
		if _, ok := platformnet.ParseDirectHTTPURL(target); !ok {
			return fmt.Errorf("webhooks.targets entry %q is not a valid http(s) URL", target)
		}
	}
	if cfg.Webhooks.Timeout <= 0 {
		return fmt.Errorf("webhooks.timeout must be positive, got %s", cfg.Webhooks.Timeout)
	}

	if cfg.API.RateLimit < 1 {
		return fmt.Errorf("api.rate_limit must be at least 1, got %d", cfg.API.RateLimit)
	}
	if cfg.API.StreamFPSCap < 1 || cfg.API.StreamFPSCap > 60 {
		return fmt.Errorf("api.stream_fps_cap must be within [1,60], got %d", cfg.API.StreamFPSCap)
	}

	switch cfg.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http\", got %q", cfg.Telemetry.Protocol)
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %g", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry.endpoint must be set when telemetry is enabled")
	}

	return nil
}
