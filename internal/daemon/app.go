// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/events"
)

// Runner is a background subsystem driven for the whole daemon
// lifetime. Run blocks until its context ends and returns nil on a
// clean stop.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type namedRunner struct {
	name   string
	runner Runner
}

// App owns the long-lived runtime: the session loop, the sensor
// monitors, reload wiring and the visibility signals. Server lifecycle
// is delegated to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	bus          events.Bus
	runners      []namedRunner
	reloadSignal os.Signal
}

// NewApp creates the runtime orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder, bus events.Bus) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		bus:          bus,
		reloadSignal: syscall.SIGHUP,
	}
}

// AddRunner registers a background subsystem. All runners start when
// Run is called and stop when the run context ends.
func (a *App) AddRunner(name string, r Runner) {
	a.runners = append(a.runners, namedRunner{name: name, runner: r})
}

// Run starts every subsystem and blocks until ctx is cancelled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup must not fail because the
	// file cannot be watched.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	// SIGHUP triggers a manual reload.
	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.holder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// SIGUSR1 parks the session as if every client went away, SIGUSR2
	// brings it back. Operators use this to free the camera without
	// stopping the daemon.
	if a.bus != nil {
		g.Go(func() error { return a.watchVisibilitySignals(ctx) })
	}

	for _, nr := range a.runners {
		g.Go(func() error {
			if err := nr.runner.Run(ctx); err != nil {
				a.logger.Error().Err(err).Str("runner", nr.name).Msg("runner failed")
				return fmt.Errorf("%s: %w", nr.name, err)
			}
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

func (a *App) watchVisibilitySignals(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigChan:
			foreground := sig == syscall.SIGUSR2
			a.logger.Info().
				Str("event", "visibility.signal").
				Str("signal", sig.String()).
				Bool("foreground", foreground).
				Msg("visibility changed by signal")

			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := a.bus.Publish(pubCtx, events.TopicVisibility, events.VisibilityChange{
				Foreground: foreground,
				Source:     "signal",
			})
			cancel()
			if err != nil {
				a.logger.Warn().Err(err).Msg("failed to publish visibility change")
			}
		}
	}
}
