// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := Config{}
	setDefaults(&cfg)
	cfg.DataDir = "/tmp/camwatch-test"
	cfg.Photo.Dir = "/tmp/camwatch-test/photos"
	cfg.Index.Path = "/tmp/camwatch-test/index"
	cfg.Journal.Path = "/tmp/camwatch-test/journal.db"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(validTestConfig()); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "empty listen",
			mutate:  func(c *Config) { c.Listen = " " },
			wantSub: "listen",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Device.Backend = "gstreamer" },
			wantSub: "device.backend",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Device.Strategy = "random" },
			wantSub: "device.strategy",
		},
		{
			name:    "max age too small",
			mutate:  func(c *Config) { c.Session.MaxAge = 30 * time.Second },
			wantSub: "session.max_age",
		},
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.Session.PermissionPollInterval = 100 * time.Millisecond },
			wantSub: "permission_poll_interval",
		},
		{
			name:    "threshold below gravity",
			mutate:  func(c *Config) { c.Motion.Threshold = 0.5 },
			wantSub: "motion.threshold",
		},
		{
			name:    "sample rate zero",
			mutate:  func(c *Config) { c.Motion.SampleRateHz = 0 },
			wantSub: "sample_rate_hz",
		},
		{
			name:    "idle timeout too short",
			mutate:  func(c *Config) { c.Motion.IdleTimeout = time.Second },
			wantSub: "idle_timeout",
		},
		{
			name:    "quality out of range",
			mutate:  func(c *Config) { c.Photo.Quality = 101 },
			wantSub: "photo.quality",
		},
		{
			name:    "constrained above normal",
			mutate:  func(c *Config) { c.Photo.QualityConstrained = 95; c.Photo.Quality = 90 },
			wantSub: "quality_constrained",
		},
		{
			name:    "unknown index backend",
			mutate:  func(c *Config) { c.Index.Backend = "bolt" },
			wantSub: "index.backend",
		},
		{
			name:    "emergency below high",
			mutate:  func(c *Config) { c.Pressure.High = 50; c.Pressure.Emergency = 40 },
			wantSub: "pressure.emergency",
		},
		{
			name:    "mirror enabled without addr",
			mutate:  func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Addr = "" },
			wantSub: "mirror.addr",
		},
		{
			name:    "bad webhook target",
			mutate:  func(c *Config) { c.Webhooks.Targets = []string{"not a url"} },
			wantSub: "webhooks.targets",
		},
		{
			name:    "stream fps cap too high",
			mutate:  func(c *Config) { c.API.StreamFPSCap = 120 },
			wantSub: "stream_fps_cap",
		},
		{
			name:    "unknown telemetry protocol",
			mutate:  func(c *Config) { c.Telemetry.Protocol = "thrift" },
			wantSub: "telemetry.protocol",
		},
		{
			name:    "telemetry enabled without endpoint",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" },
			wantSub: "telemetry.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}
