// SPDX-License-Identifier: MIT

package config

// mergeFileConfig applies every field the file actually set onto cfg.
func mergeFileConfig(cfg *Config, f *fileConfig) {
	if f == nil {
		return
	}

	set(&cfg.Listen, f.Listen)
	set(&cfg.DataDir, f.DataDir)

	if f.Log != nil {
		set(&cfg.Log.Level, f.Log.Level)
	}

	if f.Device != nil {
		set(&cfg.Device.Backend, f.Device.Backend)
		set(&cfg.Device.Path, f.Device.Path)
		set(&cfg.Device.Strategy, f.Device.Strategy)
		set(&cfg.Device.Disabled, f.Device.Disabled)
		set(&cfg.Device.FFmpeg, f.Device.FFmpeg)
	}

	if f.Session != nil {
		set(&cfg.Session.MaxAge, f.Session.MaxAge)
		set(&cfg.Session.PermissionPollInterval, f.Session.PermissionPollInterval)
		set(&cfg.Session.DeniedWindow, f.Session.DeniedWindow)
	}

	if f.Motion != nil {
		set(&cfg.Motion.Source, f.Motion.Source)
		set(&cfg.Motion.IIOPath, f.Motion.IIOPath)
		set(&cfg.Motion.SampleRateHz, f.Motion.SampleRateHz)
		set(&cfg.Motion.Threshold, f.Motion.Threshold)
		set(&cfg.Motion.IdleTimeout, f.Motion.IdleTimeout)
	}

	if f.Photo != nil {
		set(&cfg.Photo.Dir, f.Photo.Dir)
		set(&cfg.Photo.Quality, f.Photo.Quality)
		set(&cfg.Photo.QualityConstrained, f.Photo.QualityConstrained)
	}

	if f.Index != nil {
		set(&cfg.Index.Backend, f.Index.Backend)
		set(&cfg.Index.Path, f.Index.Path)
	}

	if f.Journal != nil {
		set(&cfg.Journal.Path, f.Journal.Path)
	}

	if f.Pressure != nil {
		set(&cfg.Pressure.Source, f.Pressure.Source)
		set(&cfg.Pressure.PollInterval, f.Pressure.PollInterval)
		set(&cfg.Pressure.High, f.Pressure.High)
		set(&cfg.Pressure.Emergency, f.Pressure.Emergency)
	}

	if f.Mirror != nil {
		set(&cfg.Mirror.Enabled, f.Mirror.Enabled)
		set(&cfg.Mirror.Addr, f.Mirror.Addr)
		set(&cfg.Mirror.Password, f.Mirror.Password)
		set(&cfg.Mirror.DB, f.Mirror.DB)
		set(&cfg.Mirror.FrameInterval, f.Mirror.FrameInterval)
		set(&cfg.Mirror.StateTTL, f.Mirror.StateTTL)
	}

	if f.Webhooks != nil {
		if f.Webhooks.Targets != nil {
			cfg.Webhooks.Targets = append([]string(nil), f.Webhooks.Targets...)
		}
		set(&cfg.Webhooks.AllowPrivate, f.Webhooks.AllowPrivate)
		set(&cfg.Webhooks.Timeout, f.Webhooks.Timeout)
	}

	if f.API != nil {
		set(&cfg.API.RateLimit, f.API.RateLimit)
		set(&cfg.API.StreamFPSCap, f.API.StreamFPSCap)
	}

	if f.Telemetry != nil {
		set(&cfg.Telemetry.Enabled, f.Telemetry.Enabled)
		set(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
		set(&cfg.Telemetry.Protocol, f.Telemetry.Protocol)
		set(&cfg.Telemetry.SampleRate, f.Telemetry.SampleRate)
		set(&cfg.Telemetry.Insecure, f.Telemetry.Insecure)
	}
}

// set applies a file value only when the key was present.
func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
