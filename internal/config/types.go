// SPDX-License-Identifier: MIT

package config

import "time"

// Config is the fully resolved daemon configuration.
type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Device    DeviceConfig    `yaml:"device"`
	Session   SessionConfig   `yaml:"session"`
	Motion    MotionConfig    `yaml:"motion"`
	Photo     PhotoConfig     `yaml:"photo"`
	Index     IndexConfig     `yaml:"index"`
	Journal   JournalConfig   `yaml:"journal"`
	Pressure  PressureConfig  `yaml:"pressure"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DeviceConfig selects and constrains the capture backend.
type DeviceConfig struct {
	Backend  string `yaml:"backend"`  // "v4l2" or "fake"
	Path     string `yaml:"path"`     // device node; empty means discover
	Strategy string `yaml:"strategy"` // "prefer-external" or "prefer-integrated"
	Disabled bool   `yaml:"disabled"` // administrative restriction
	FFmpeg   string `yaml:"ffmpeg_bin"`
}

// SessionConfig bounds the capture session lifecycle.
type SessionConfig struct {
	MaxAge                 time.Duration `yaml:"max_age"`
	PermissionPollInterval time.Duration `yaml:"permission_poll_interval"`
	DeniedWindow           time.Duration `yaml:"denied_window"`
}

// MotionConfig tunes the activity detector.
type MotionConfig struct {
	Source       string        `yaml:"source"` // "iio" or "none"
	IIOPath      string        `yaml:"iio_path"`
	SampleRateHz int           `yaml:"sample_rate_hz"`
	Threshold    float64       `yaml:"threshold"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PhotoConfig controls still-capture encoding and placement.
type PhotoConfig struct {
	Dir                string `yaml:"dir"`
	Quality            int    `yaml:"quality"`
	QualityConstrained int    `yaml:"quality_constrained"`
}

// IndexConfig selects the photo metadata index backend.
type IndexConfig struct {
	Backend string `yaml:"backend"` // "memory" or "badger"
	Path    string `yaml:"path"`
}

// JournalConfig locates the session-event journal database.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// PressureConfig tunes the memory-pressure source. High and Emergency are
// PSI avg10 percentages.
type PressureConfig struct {
	Source       string        `yaml:"source"` // "psi" or "none"
	PollInterval time.Duration `yaml:"poll_interval"`
	High         float64       `yaml:"high"`
	Emergency    float64       `yaml:"emergency"`
}

// MirrorConfig controls the optional Redis state mirror.
type MirrorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	StateTTL      time.Duration `yaml:"state_ttl"`
}

// WebhookConfig lists event notification targets.
type WebhookConfig struct {
	Targets      []string      `yaml:"targets"`
	AllowPrivate bool          `yaml:"allow_private"`
	Timeout      time.Duration `yaml:"timeout"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	RateLimit    int `yaml:"rate_limit"` // requests per minute per client
	StreamFPSCap int `yaml:"stream_fps_cap"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	Protocol   string  `yaml:"protocol"` // "grpc" or "http"
	SampleRate float64 `yaml:"sample_rate"`
	Insecure   bool    `yaml:"insecure"`
}

// fileConfig mirrors Config with pointer fields so a YAML file can express
// partial overrides; nil means "not present, keep lower-precedence value".
type fileConfig struct {
	Listen  *string `yaml:"listen"`
	DataDir *string `yaml:"data_dir"`

	Log *struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`

	Device *struct {
		Backend  *string `yaml:"backend"`
		Path     *string `yaml:"path"`
		Strategy *string `yaml:"strategy"`
		Disabled *bool   `yaml:"disabled"`
		FFmpeg   *string `yaml:"ffmpeg_bin"`
	} `yaml:"device"`

	Session *struct {
		MaxAge                 *time.Duration `yaml:"max_age"`
		PermissionPollInterval *time.Duration `yaml:"permission_poll_interval"`
		DeniedWindow           *time.Duration `yaml:"denied_window"`
	} `yaml:"session"`

	Motion *struct {
		Source       *string        `yaml:"source"`
		IIOPath      *string        `yaml:"iio_path"`
		SampleRateHz *int           `yaml:"sample_rate_hz"`
		Threshold    *float64       `yaml:"threshold"`
		IdleTimeout  *time.Duration `yaml:"idle_timeout"`
	} `yaml:"motion"`

	Photo *struct {
		Dir                *string `yaml:"dir"`
		Quality            *int    `yaml:"quality"`
		QualityConstrained *int    `yaml:"quality_constrained"`
	} `yaml:"photo"`

	Index *struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
	} `yaml:"index"`

	Journal *struct {
		Path *string `yaml:"path"`
	} `yaml:"journal"`

	Pressure *struct {
		Source       *string        `yaml:"source"`
		PollInterval *time.Duration `yaml:"poll_interval"`
		High         *float64       `yaml:"high"`
		Emergency    *float64       `yaml:"emergency"`
	} `yaml:"pressure"`

	Mirror *struct {
		Enabled       *bool          `yaml:"enabled"`
		Addr          *string        `yaml:"addr"`
		Password      *string        `yaml:"password"`
		DB            *int           `yaml:"db"`
		FrameInterval *time.Duration `yaml:"frame_interval"`
		StateTTL      *time.Duration `yaml:"state_ttl"`
	} `yaml:"mirror"`

	Webhooks *struct {
		Targets      []string       `yaml:"targets"`
		AllowPrivate *bool          `yaml:"allow_private"`
		Timeout      *time.Duration `yaml:"timeout"`
	} `yaml:"webhooks"`

	API *struct {
		RateLimit    *int `yaml:"rate_limit"`
		StreamFPSCap *int `yaml:"stream_fps_cap"`
	} `yaml:"api"`

	Telemetry *struct {
		Enabled    *bool    `yaml:"enabled"`
		Endpoint   *string  `yaml:"endpoint"`
		Protocol   *string  `yaml:"protocol"`
		SampleRate *float64 `yaml:"sample_rate"`
		Insecure   *bool    `yaml:"insecure"`
	} `yaml:"telemetry"`
}
