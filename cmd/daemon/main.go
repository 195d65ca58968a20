// SPDX-License-Identifier: MIT

// camwatchd is the capture daemon. It owns the camera, serves the HTTP
// API and reacts to permission, motion and memory-pressure signals.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/daemon"
	cwlog "github.com/ManuGH/camwatch/internal/log"
	platformnet "github.com/ManuGH/camwatch/internal/platform/net"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "healthcheck" {
		return runHealthcheckCLI(args[1:])
	}

	fs := flag.NewFlagSet("camwatchd", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return exitOK
	}

	// Safe defaults until the loaded configuration takes over.
	cwlog.Configure(cwlog.Config{Level: "info", Service: "camwatch"})
	logger := cwlog.WithComponent("main")

	ctx := daemon.WaitForShutdown()

	effectivePath, source := resolveConfigPath(strings.TrimSpace(*configPath))

	d, err := daemon.New(ctx, daemon.Options{Version: version, ConfigPath: effectivePath})
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.init_failed").
			Str("config_path", effectivePath).
			Msg("failed to initialize daemon")
		if errors.Is(err, config.ErrInvalid) {
			return exitConfig
		}
		return exitRuntime
	}

	switch source {
	case "file":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectivePath).
			Msg("loaded configuration from file")
	case "file(auto)":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectivePath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// Log key configuration
	cfg := d.Config()
	logger.Info().Msgf("→ Device: %s (path: %s, strategy: %s)", cfg.Device.Backend, devicePathLabel(cfg.Device.Path), cfg.Device.Strategy)
	if cfg.Motion.Source == "iio" {
		logger.Info().Msgf("→ Motion: iio (threshold: %.2fg, idle: %s)", cfg.Motion.Threshold, cfg.Motion.IdleTimeout)
	} else {
		logger.Info().Msg("→ Motion: disabled")
	}
	if cfg.Pressure.Source == "psi" {
		logger.Info().Msgf("→ Pressure: psi (high: %.0f%%, emergency: %.0f%%)", cfg.Pressure.High, cfg.Pressure.Emergency)
	} else {
		logger.Info().Msg("→ Pressure: disabled")
	}
	logger.Info().Msgf("→ Photos: %s (quality: %d/%d)", cfg.Photo.Dir, cfg.Photo.Quality, cfg.Photo.QualityConstrained)
	if cfg.Mirror.Enabled {
		logger.Info().Msgf("→ Mirror: %s (db: %d)", cfg.Mirror.Addr, cfg.Mirror.DB)
	}
	for _, target := range cfg.Webhooks.Targets {
		logger.Info().Msgf("→ Webhook: %s", platformnet.SanitizeURL(target))
	}
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)

	if err := d.Run(ctx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
		return exitRuntime
	}

	logger.Info().Msg("server exiting")
	return exitOK
}

// resolveConfigPath returns the effective config file and its source
// label. Without --config the daemon picks up ${CAMWATCH_DATA_DIR}/config.yaml
// when that file exists, so operator-edited config survives restarts.
func resolveConfigPath(explicit string) (string, string) {
	if explicit != "" {
		return explicit, "file"
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvDataDir, "/var/lib/camwatch"))
	if dataDir == "" {
		return "", "env+defaults"
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath, "file(auto)"
	}
	return "", "env+defaults"
}

func devicePathLabel(path string) string {
	if path == "" {
		return "auto"
	}
	return path
}
