// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every configuration load or validation failure.
// cmd/daemon and cmd/validate map it to a distinct exit code.
var ErrInvalid = errors.New("invalid configuration")

// Defaults that are part of the daemon's behavioral contract.
const (
	DefaultListen                 = ":8089"
	DefaultMaxSessionAge          = 30 * time.Minute
	DefaultPermissionPollInterval = 2 * time.Second
	DefaultDeniedWindow           = 10 * time.Second
	DefaultMotionSampleRateHz     = 10
	DefaultMotionThreshold        = 1.01
	DefaultIdleTimeout            = 30 * time.Second
	DefaultPhotoQuality           = 92
	DefaultPhotoQualityLow        = 70
	DefaultPressurePollInterval   = 5 * time.Second
	DefaultPressureHigh           = 10.0
	DefaultPressureEmergency      = 40.0
	DefaultAPIRateLimit           = 60
	DefaultStreamFPSCap           = 10
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envLookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	return os.LookupEnv(key)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (Config, error) {
	cfg := Config{}

	// 1. Set defaults
	setDefaults(&cfg)

	// 2. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("%w: load config file: %w", ErrInvalid, err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	// 3. Override with environment variables (highest priority)
	if err := l.mergeEnvConfig(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// SAFETY: Ensure DataDir is absolute to prevent path traversal/platform errors
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	// 4. Derive dependent paths from DataDir where unset
	if cfg.Photo.Dir == "" {
		cfg.Photo.Dir = filepath.Join(cfg.DataDir, "photos")
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.DataDir, "index")
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal.db")
	}

	// 5. Version from binary
	cfg.Version = l.version

	// 6. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return cfg, nil
}

// Defaults returns the built-in configuration before any file or
// environment overrides are applied.
func Defaults() Config {
	var cfg Config
	setDefaults(&cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Listen = DefaultListen
	cfg.DataDir = "/var/lib/camwatch"
	cfg.Log.Level = "info"

	cfg.Device.Backend = "v4l2"
	cfg.Device.Strategy = "prefer-external"
	cfg.Device.FFmpeg = "ffmpeg"

	cfg.Session.MaxAge = DefaultMaxSessionAge
	cfg.Session.PermissionPollInterval = DefaultPermissionPollInterval
	cfg.Session.DeniedWindow = DefaultDeniedWindow

	cfg.Motion.Source = "iio"
	cfg.Motion.SampleRateHz = DefaultMotionSampleRateHz
	cfg.Motion.Threshold = DefaultMotionThreshold
	cfg.Motion.IdleTimeout = DefaultIdleTimeout

	cfg.Photo.Quality = DefaultPhotoQuality
	cfg.Photo.QualityConstrained = DefaultPhotoQualityLow

	cfg.Index.Backend = "badger"

	cfg.Pressure.Source = "psi"
	cfg.Pressure.PollInterval = DefaultPressurePollInterval
	cfg.Pressure.High = DefaultPressureHigh
	cfg.Pressure.Emergency = DefaultPressureEmergency

	cfg.Mirror.Addr = "localhost:6379"
	cfg.Mirror.FrameInterval = time.Second
	cfg.Mirror.StateTTL = 30 * time.Second

	cfg.Webhooks.Timeout = 5 * time.Second

	cfg.API.RateLimit = DefaultAPIRateLimit
	cfg.API.StreamFPSCap = DefaultStreamFPSCap

	cfg.Telemetry.Protocol = "grpc"
	cfg.Telemetry.SampleRate = 0.1
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*fileConfig, error) {
	path = filepath.Clean(path)

	// Check file extension
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// Read file
	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	// Parse YAML with strict mode (unknown fields cause errors)
	var fileCfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}
