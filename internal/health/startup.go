// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/pressure"
)

// PerformStartupChecks validates the environment before the daemon
// starts serving. Hard failures abort startup; conditions the daemon
// can recover from at runtime (an absent camera, a kernel without PSI)
// only warn.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	if err := checkListenAddr(logger, cfg.Listen); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}

	if err := checkCaptureStack(logger, cfg); err != nil {
		return fmt.Errorf("capture stack check failed: %w", err)
	}

	if err := checkStoragePaths(logger, cfg); err != nil {
		return fmt.Errorf("storage path check failed: %w", err)
	}

	if err := checkWebhookTargets(logger, cfg.Webhooks.Targets); err != nil {
		return fmt.Errorf("webhook target check failed: %w", err)
	}

	if err := checkMirror(logger, cfg.Mirror); err != nil {
		return fmt.Errorf("mirror check failed: %w", err)
	}

	checkSensorSources(logger, cfg)
	warnTempDataDir(logger, cfg.DataDir)

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ Data directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ Listen address is valid")
	return nil
}

// checkCaptureStack verifies the tools the v4l2 backend shells out to.
// A missing device node is not fatal; hotplug may bring it later.
func checkCaptureStack(logger zerolog.Logger, cfg config.Config) error {
	if cfg.Device.Disabled {
		logger.Warn().Msg("capture disabled by configuration; skipping device checks")
		return nil
	}
	switch cfg.Device.Backend {
	case "fake":
		logger.Info().Msg("capture backend is fake; skipping ffmpeg dependency check")
		return nil
	case "v4l2", "":
		ffmpegBin := strings.TrimSpace(cfg.Device.FFmpeg)
		if ffmpegBin == "" {
			ffmpegBin = "ffmpeg"
		}
		if _, err := exec.LookPath(ffmpegBin); err != nil {
			return fmt.Errorf("ffmpeg binary not found (%s): %w", ffmpegBin, err)
		}
		logger.Info().Str("ffmpeg", ffmpegBin).Msg("✓ Capture dependencies available")

		if cfg.Device.Path != "" {
			if _, err := os.Stat(cfg.Device.Path); err != nil {
				logger.Warn().
					Str(log.FieldPath, cfg.Device.Path).
					Msg("configured capture device not present; waiting for hotplug")
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown capture backend %q", cfg.Device.Backend)
	}
}

func checkStoragePaths(logger zerolog.Logger, cfg config.Config) error {
	if cfg.Photo.Dir != "" {
		if !filepath.IsAbs(cfg.Photo.Dir) {
			return fmt.Errorf("photo directory must be an absolute path: %s", cfg.Photo.Dir)
		}
		if err := os.MkdirAll(cfg.Photo.Dir, 0750); err != nil {
			return fmt.Errorf("failed to ensure photo directory %s: %w", cfg.Photo.Dir, err)
		}
	}
	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0750); err != nil {
			return fmt.Errorf("failed to ensure journal directory for %s: %w", cfg.Journal.Path, err)
		}
	}
	if cfg.Index.Backend == "badger" {
		if cfg.Index.Path == "" {
			return fmt.Errorf("index backend badger requires a path")
		}
		if err := os.MkdirAll(cfg.Index.Path, 0750); err != nil {
			return fmt.Errorf("failed to ensure index directory %s: %w", cfg.Index.Path, err)
		}
	}
	logger.Info().Msg("✓ Storage paths validated")
	return nil
}

func checkWebhookTargets(logger zerolog.Logger, targets []string) error {
	if len(targets) == 0 {
		return nil
	}
	for _, target := range targets {
		u, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("invalid webhook target %q: %w", target, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("webhook target scheme must be http or https, got %q in %q", u.Scheme, target)
		}
		if u.Host == "" {
			return fmt.Errorf("webhook target %q has no host", target)
		}
	}
	logger.Info().Int("count", len(targets)).Msg("✓ Webhook targets validated")
	return nil
}

func checkMirror(logger zerolog.Logger, cfg config.MirrorConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("invalid mirror address %q: %w", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Msg("✓ Mirror address is valid")
	return nil
}

// checkSensorSources never fails startup. Pressure and motion inputs
// are optional; the session simply sees no events from an absent one.
func checkSensorSources(logger zerolog.Logger, cfg config.Config) {
	if cfg.Pressure.Source == "psi" {
		path := pressure.DefaultPSIPath
		if _, err := os.Stat(path); err != nil {
			logger.Warn().
				Str(log.FieldPath, path).
				Msg("memory pressure interface unavailable; pressure events disabled")
		}
	}
	if cfg.Motion.Source == "iio" && cfg.Motion.IIOPath != "" {
		if _, err := os.Stat(cfg.Motion.IIOPath); err != nil {
			logger.Warn().
				Str(log.FieldPath, cfg.Motion.IIOPath).
				Msg("motion sensor path unavailable; idle pause and orientation tracking disabled")
		}
	}
}

func warnTempDataDir(logger zerolog.Logger, dataDir string) {
	tempDir := filepath.Clean(os.TempDir())
	cleaned := filepath.Clean(dataDir)
	if tempDir != "." && (cleaned == tempDir || strings.HasPrefix(cleaned, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", dataDir).
			Msg("data directory is under temp; journal and photos may be lost on reboot")
	}
}
