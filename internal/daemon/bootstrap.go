// SPDX-License-Identifier: MIT

// Package daemon assembles the capture daemon: configuration, the
// capture stack, the HTTP surface and every background monitor, plus
// the lifecycle that starts and stops them as one unit.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camwatch/internal/api"
	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/frames"
	"github.com/ManuGH/camwatch/internal/health"
	"github.com/ManuGH/camwatch/internal/journal"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/mirror"
	"github.com/ManuGH/camwatch/internal/motion"
	"github.com/ManuGH/camwatch/internal/notify"
	"github.com/ManuGH/camwatch/internal/permission"
	"github.com/ManuGH/camwatch/internal/photo"
	"github.com/ManuGH/camwatch/internal/pressure"
	"github.com/ManuGH/camwatch/internal/ratelimit"
	"github.com/ManuGH/camwatch/internal/session"
	"github.com/ManuGH/camwatch/internal/storage"
	"github.com/ManuGH/camwatch/internal/telemetry"
)

// Options selects the configuration source for a daemon instance.
type Options struct {
	// Version is the build version reported in logs, status and traces.
	Version string

	// ConfigPath points at the YAML config file. Empty means ENV and
	// defaults only.
	ConfigPath string
}

// Daemon is a fully assembled capture daemon. New wires it, Run starts
// it; nothing touches the camera or the network in between.
type Daemon struct {
	cfg     config.Config
	holder  *config.Holder
	app     *App
	manager Manager
	logger  zerolog.Logger
}

// New loads configuration, validates the environment and assembles
// every subsystem. On error, resources opened along the way are closed
// again before returning.
func New(ctx context.Context, opts Options) (*Daemon, error) {
	loader := config.NewLoader(opts.ConfigPath, opts.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: "camwatch"})
	applyLogLevel(cfg.Log.Level)
	logger := log.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks: %w", err)
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "camwatch",
		ServiceVersion: cfg.Version,
		Protocol:       cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Everything opened from here on must be released again when a
	// later step fails.
	var closers []func()
	fail := func(err error) (*Daemon, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}
	closers = append(closers, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(flushCtx)
	})

	holder := config.NewHolder(cfg, loader, opts.ConfigPath)
	bus := events.NewMemoryBus()
	framesHolder := frames.NewHolder()

	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fail(fmt.Errorf("open journal: %w", err))
	}
	closers = append(closers, func() { _ = jnl.Close() })

	index, err := storage.OpenIndex(cfg.Index.Backend, cfg.Index.Path)
	if err != nil {
		return fail(fmt.Errorf("open photo index: %w", err))
	}
	closers = append(closers, func() { _ = index.Close() })

	store, err := storage.NewFileStore(cfg.Photo.Dir)
	if err != nil {
		return fail(fmt.Errorf("open photo store: %w", err))
	}

	backend, err := buildBackend(cfg.Device)
	if err != nil {
		return fail(err)
	}
	strategy, err := device.StrategyFromName(cfg.Device.Strategy)
	if err != nil {
		return fail(fmt.Errorf("device strategy: %w", err))
	}

	permMonitor := permission.NewMonitor(backend, bus, cfg.Session.PermissionPollInterval)
	permMonitor.SetDeniedWindow(cfg.Session.DeniedWindow)

	controller, err := session.NewController(backend, strategy, permMonitor, bus, jnl, framesHolder, session.Config{
		MaxSessionAge: cfg.Session.MaxAge,
	})
	if err != nil {
		return fail(fmt.Errorf("session controller: %w", err))
	}

	var pressureMonitor *pressure.Monitor
	if cfg.Pressure.Source == "psi" {
		pressureMonitor = pressure.NewMonitor(&pressure.PSISource{}, bus,
			cfg.Pressure.PollInterval, cfg.Pressure.High, cfg.Pressure.Emergency)
	}

	var detector *motion.Detector
	if cfg.Motion.Source == "iio" {
		detector = motion.NewDetector(&motion.IIOSource{Dir: cfg.Motion.IIOPath}, bus,
			cfg.Motion.SampleRateHz, cfg.Motion.Threshold, cfg.Motion.IdleTimeout)
	}

	var levels photo.LevelSource
	if pressureMonitor != nil {
		levels = pressureMonitor
	}
	coordinator := photo.NewCoordinator(controller, store, index, bus, levels)
	coordinator.SetQualityTiers(cfg.Photo.Quality, cfg.Photo.QualityConstrained)

	var stateMirror *mirror.Mirror
	if cfg.Mirror.Enabled {
		stateMirror, err = mirror.New(mirror.Config{
			Addr:          cfg.Mirror.Addr,
			Password:      cfg.Mirror.Password,
			DB:            cfg.Mirror.DB,
			FrameInterval: cfg.Mirror.FrameInterval,
			StateTTL:      cfg.Mirror.StateTTL,
		}, bus, controller.Status, framesHolder)
		if err != nil {
			return fail(fmt.Errorf("connect mirror: %w", err))
		}
		closers = append(closers, func() { _ = stateMirror.Close() })
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Targets:      cfg.Webhooks.Targets,
		AllowPrivate: cfg.Webhooks.AllowPrivate,
		Timeout:      cfg.Webhooks.Timeout,
	}, bus)

	healthMgr := health.NewManager(cfg.Version)
	healthMgr.RegisterChecker(health.NewDeviceChecker(backend))
	healthMgr.RegisterChecker(health.NewStreamChecker(controller.Status, 0))
	healthMgr.RegisterChecker(health.NewStorageChecker(cfg.Photo.Dir))
	healthMgr.RegisterChecker(health.NewPingChecker("journal", jnl))
	if stateMirror != nil {
		healthMgr.RegisterChecker(health.NewPingChecker("mirror", stateMirror))
	}

	apiServer, err := api.New(api.Options{
		Holder:  holder,
		Session: controller,
		Photos:  coordinator,
		Journal: jnl,
		Index:   index,
		Frames:  framesHolder,
		Health:  healthMgr,
		Bus:     bus,
		Limiter: ratelimit.New(ratelimit.ConfigForRate(cfg.API.RateLimit)),
	})
	if err != nil {
		return fail(fmt.Errorf("build api: %w", err))
	}

	mgr, err := NewManager(ServerConfig{ListenAddr: cfg.Listen}, Deps{
		Logger:     logger,
		Holder:     holder,
		APIHandler: apiServer.Handler(),
	})
	if err != nil {
		return fail(fmt.Errorf("build manager: %w", err))
	}

	// Hooks run LIFO: the mirror stops touching Redis first, storage
	// closes after the monitors are gone, telemetry flushes last.
	mgr.RegisterShutdownHook("telemetry", tel.Shutdown)
	mgr.RegisterShutdownHook("journal", func(context.Context) error { return jnl.Close() })
	mgr.RegisterShutdownHook("index", func(context.Context) error { return index.Close() })
	if stateMirror != nil {
		mgr.RegisterShutdownHook("mirror", func(context.Context) error { return stateMirror.Close() })
	}

	app := NewApp(logger, mgr, holder, bus)
	app.AddRunner("session", controller)
	app.AddRunner("permission", permMonitor)
	if pressureMonitor != nil {
		app.AddRunner("pressure", pressureMonitor)
	}
	if detector != nil {
		app.AddRunner("motion", detector)
	}
	if stateMirror != nil {
		app.AddRunner("mirror", stateMirror)
	}
	app.AddRunner("webhooks", dispatcher)
	if cfg.Device.Backend != "fake" {
		app.AddRunner("hotplug", hotplugRunner(device.NewHotplugWatcher("/dev", "video*", bus), logger))
	}
	app.AddRunner("reload-listener", reloadListener(holder, detector, dispatcher, stateMirror))

	return &Daemon{
		cfg:     cfg,
		holder:  holder,
		app:     app,
		manager: mgr,
		logger:  logger,
	}, nil
}

// Run starts every subsystem and blocks until ctx is canceled or one
// of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("event", "startup").
		Str("version", d.cfg.Version).
		Str("addr", d.cfg.Listen).
		Str("backend", d.cfg.Device.Backend).
		Str("data_dir", d.cfg.DataDir).
		Msg("starting camwatch")

	return d.app.Run(ctx)
}

// Config returns the resolved startup configuration.
func (d *Daemon) Config() config.Config { return d.cfg }

// buildBackend constructs the configured capture backend. The disabled
// flag wraps it so discovery still works while capture stays blocked.
func buildBackend(cfg config.DeviceConfig) (device.Backend, error) {
	var backend device.Backend
	switch cfg.Backend {
	case "v4l2", "":
		backend = device.NewV4L2Backend(cfg.FFmpeg, cfg.Path)
	case "fake":
		backend = device.NewFakeBackend()
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
	if cfg.Disabled {
		backend = device.Restricted(backend)
	}
	return backend, nil
}

// hotplugRunner adapts the start/stop watcher to the runner contract.
// Hotplug is advisory, so a watcher that cannot start only warns.
func hotplugRunner(w *device.HotplugWatcher, logger zerolog.Logger) Runner {
	return RunnerFunc(func(ctx context.Context) error {
		if err := w.Start(); err != nil {
			logger.Warn().Err(err).
				Str("event", "hotplug.start_failed").
				Msg("device hotplug watching disabled")
			return nil
		}
		<-ctx.Done()
		w.Stop()
		return nil
	})
}

// reloadListener applies the safe reload subset that is not read
// through the holder at point of use: log level, motion tuning,
// webhook targets and the mirror toggle. A mirror disabled at startup
// has no connection to resume, so enabling one still needs a restart.
func reloadListener(holder *config.Holder, detector *motion.Detector, dispatcher *notify.Dispatcher, stateMirror *mirror.Mirror) Runner {
	return RunnerFunc(func(ctx context.Context) error {
		updates := make(chan config.Config, 1)
		holder.RegisterListener(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				applyLogLevel(next.Log.Level)
				if detector != nil {
					detector.Retune(next.Motion.Threshold, next.Motion.IdleTimeout)
				}
				dispatcher.SetTargets(next.Webhooks.Targets, next.Webhooks.AllowPrivate)
				if stateMirror != nil {
					stateMirror.SetSuspended(!next.Mirror.Enabled)
				}
			}
		}
	})
}

// applyLogLevel installs the global log level. Unparseable levels keep
// the current one.
func applyLogLevel(level string) {
	if level == "" {
		return
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

// WaitForShutdown returns a context canceled on SIGINT or SIGTERM.
func WaitForShutdown() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
