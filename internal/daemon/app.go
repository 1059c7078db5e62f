// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon runs the long-lived parts of booksync: the HTTP server,
// background workers and config reload wiring.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/log"
)

// Runner is a background subsystem that blocks until ctx is cancelled.
// A non-nil error stops the whole daemon.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// App owns the runtime lifecycle (watchers, reload wiring, workers) and
// delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	runners      []Runner
	reloadSignal os.Signal
	applyCh      chan config.AppConfig
}

// NewApp registers for config updates immediately, so a reload that lands
// before Run is applied once Run starts.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, runners ...Runner) *App {
	a := &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		runners:      runners,
		reloadSignal: syscall.SIGHUP,
	}
	if cfgHolder != nil {
		a.applyCh = make(chan config.AppConfig, 1)
		cfgHolder.RegisterListener(a.applyCh)
	}
	return a
}

// Run starts all owned subsystems and blocks until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The listener is registered in NewApp, before the watcher can reload.
	// The watcher is best-effort: startup does not fail without it.
	if a.cfgHolder != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-a.applyCh:
					a.apply(cfg)
				}
			}
		})
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
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
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	for _, r := range a.runners {
		g.Go(func() error {
			a.logger.Debug().Str("runner", r.Name).Msg("runner started")
			if err := r.Run(ctx); err != nil {
				a.logger.Error().Err(err).Str("runner", r.Name).Msg("runner failed")
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

// apply applies the hot-reloadable subset of a new configuration.
func (a *App) apply(cfg config.AppConfig) {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring invalid log level")
		return
	}
	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("level", cfg.LogLevel).
		Msg("log level applied")
}
