// SPDX-License-Identifier: MIT

package config

import "fmt"

// Environment variable keys. Every key consumed by the loader is listed here
// so the audit test can prove the set is closed.
const (
	EnvListen                 = "CAMWATCH_LISTEN"
	EnvDataDir                = "CAMWATCH_DATA_DIR"
	EnvLogLevel               = "CAMWATCH_LOG_LEVEL"
	EnvDeviceBackend          = "CAMWATCH_DEVICE_BACKEND"
	EnvDevicePath             = "CAMWATCH_DEVICE_PATH"
	EnvDeviceStrategy         = "CAMWATCH_DEVICE_STRATEGY"
	EnvDeviceDisabled         = "CAMWATCH_DEVICE_DISABLED"
	EnvFFmpegBin              = "CAMWATCH_FFMPEG_BIN"
	EnvSessionMaxAge          = "CAMWATCH_SESSION_MAX_AGE"
	EnvPermissionPollInterval = "CAMWATCH_PERMISSION_POLL_INTERVAL"
	EnvDeniedWindow           = "CAMWATCH_DENIED_WINDOW"
	EnvMotionSource           = "CAMWATCH_MOTION_SOURCE"
	EnvMotionIIOPath          = "CAMWATCH_MOTION_IIO_PATH"
	EnvMotionSampleRateHz     = "CAMWATCH_MOTION_SAMPLE_HZ"
	EnvMotionThreshold        = "CAMWATCH_MOTION_THRESHOLD"
	EnvIdleTimeout            = "CAMWATCH_IDLE_TIMEOUT"
	EnvPhotoDir               = "CAMWATCH_PHOTO_DIR"
	EnvPhotoQuality           = "CAMWATCH_PHOTO_QUALITY"
	EnvPhotoQualityLow        = "CAMWATCH_PHOTO_QUALITY_CONSTRAINED"
	EnvIndexBackend           = "CAMWATCH_INDEX_BACKEND"
	EnvIndexPath              = "CAMWATCH_INDEX_PATH"
	EnvJournalPath            = "CAMWATCH_JOURNAL_PATH"
	EnvPressureSource         = "CAMWATCH_PRESSURE_SOURCE"
	EnvPressurePollInterval   = "CAMWATCH_PRESSURE_POLL_INTERVAL"
	EnvPressureHigh           = "CAMWATCH_PRESSURE_HIGH"
	EnvPressureEmergency      = "CAMWATCH_PRESSURE_EMERGENCY"
	EnvMirrorEnabled          = "CAMWATCH_MIRROR_ENABLED"
	EnvMirrorAddr             = "CAMWATCH_MIRROR_ADDR"
	EnvMirrorPassword         = "CAMWATCH_MIRROR_PASSWORD"
	EnvMirrorDB               = "CAMWATCH_MIRROR_DB"
	EnvWebhookTargets         = "CAMWATCH_WEBHOOK_TARGETS"
	EnvWebhookAllowPrivate    = "CAMWATCH_WEBHOOK_ALLOW_PRIVATE"
	EnvWebhookTimeout         = "CAMWATCH_WEBHOOK_TIMEOUT"
	EnvAPIRateLimit           = "CAMWATCH_API_RATE_LIMIT"
	EnvStreamFPSCap           = "CAMWATCH_STREAM_FPS_CAP"
	EnvOTELEnabled            = "CAMWATCH_OTEL_ENABLED"
	EnvOTELEndpoint           = "CAMWATCH_OTEL_ENDPOINT"
	EnvOTELProtocol           = "CAMWATCH_OTEL_PROTOCOL"
	EnvOTELSampleRate         = "CAMWATCH_OTEL_SAMPLE_RATE"
	EnvOTELInsecure           = "CAMWATCH_OTEL_INSECURE"
)

// mergeEnvConfig applies environment overrides on top of file and defaults.
func (l *Loader) mergeEnvConfig(cfg *Config) error {
	cfg.Listen = l.envString(EnvListen, cfg.Listen)
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)

	cfg.Device.Backend = l.envString(EnvDeviceBackend, cfg.Device.Backend)
	cfg.Device.Path = l.envString(EnvDevicePath, cfg.Device.Path)
	cfg.Device.Strategy = l.envString(EnvDeviceStrategy, cfg.Device.Strategy)
	cfg.Device.Disabled = l.envBool(EnvDeviceDisabled, cfg.Device.Disabled)
	cfg.Device.FFmpeg = l.envString(EnvFFmpegBin, cfg.Device.FFmpeg)

	cfg.Session.MaxAge = l.envDuration(EnvSessionMaxAge, cfg.Session.MaxAge)
	cfg.Session.PermissionPollInterval = l.envDuration(EnvPermissionPollInterval, cfg.Session.PermissionPollInterval)
	cfg.Session.DeniedWindow = l.envDuration(EnvDeniedWindow, cfg.Session.DeniedWindow)

	cfg.Motion.Source = l.envString(EnvMotionSource, cfg.Motion.Source)
	cfg.Motion.IIOPath = l.envString(EnvMotionIIOPath, cfg.Motion.IIOPath)
	cfg.Motion.SampleRateHz = l.envInt(EnvMotionSampleRateHz, cfg.Motion.SampleRateHz)
	cfg.Motion.Threshold = l.envFloat(EnvMotionThreshold, cfg.Motion.Threshold)
	cfg.Motion.IdleTimeout = l.envDuration(EnvIdleTimeout, cfg.Motion.IdleTimeout)

	cfg.Photo.Dir = l.envString(EnvPhotoDir, cfg.Photo.Dir)
	cfg.Photo.Quality = l.envInt(EnvPhotoQuality, cfg.Photo.Quality)
	cfg.Photo.QualityConstrained = l.envInt(EnvPhotoQualityLow, cfg.Photo.QualityConstrained)

	cfg.Index.Backend = l.envString(EnvIndexBackend, cfg.Index.Backend)
	cfg.Index.Path = l.envString(EnvIndexPath, cfg.Index.Path)
	cfg.Journal.Path = l.envString(EnvJournalPath, cfg.Journal.Path)

	cfg.Pressure.Source = l.envString(EnvPressureSource, cfg.Pressure.Source)
	cfg.Pressure.PollInterval = l.envDuration(EnvPressurePollInterval, cfg.Pressure.PollInterval)
	cfg.Pressure.High = l.envFloat(EnvPressureHigh, cfg.Pressure.High)
	cfg.Pressure.Emergency = l.envFloat(EnvPressureEmergency, cfg.Pressure.Emergency)

	cfg.Mirror.Enabled = l.envBool(EnvMirrorEnabled, cfg.Mirror.Enabled)
	cfg.Mirror.Addr = l.envString(EnvMirrorAddr, cfg.Mirror.Addr)
	cfg.Mirror.Password = l.envString(EnvMirrorPassword, cfg.Mirror.Password)
	cfg.Mirror.DB = l.envInt(EnvMirrorDB, cfg.Mirror.DB)

	if raw, ok := l.envLookup(EnvWebhookTargets); ok {
		targets, err := ParseWebhookTargets(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWebhookTargets, err)
		}
		cfg.Webhooks.Targets = targets
	}
	cfg.Webhooks.AllowPrivate = l.envBool(EnvWebhookAllowPrivate, cfg.Webhooks.AllowPrivate)
	cfg.Webhooks.Timeout = l.envDuration(EnvWebhookTimeout, cfg.Webhooks.Timeout)

	cfg.API.RateLimit = l.envInt(EnvAPIRateLimit, cfg.API.RateLimit)
	cfg.API.StreamFPSCap = l.envInt(EnvStreamFPSCap, cfg.API.StreamFPSCap)

	cfg.Telemetry.Enabled = l.envBool(EnvOTELEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString(EnvOTELEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = l.envString(EnvOTELProtocol, cfg.Telemetry.Protocol)
	cfg.Telemetry.SampleRate = l.envFloat(EnvOTELSampleRate, cfg.Telemetry.SampleRate)
	cfg.Telemetry.Insecure = l.envBool(EnvOTELInsecure, cfg.Telemetry.Insecure)

	return nil
}
