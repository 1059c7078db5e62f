// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/daemon"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/validation"
	"github.com/ManuGH/booksync/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "store":
			os.Exit(runStoreCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "token":
			os.Exit(runTokenCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, strings.TrimSpace(*configPath)); err != nil {
		l := log.WithComponent("daemon")
		l.Fatal().
			Err(err).
			Str(log.FieldEvent, "daemon.failed").
			Msg("daemon failed")
	}
}

func run(ctx context.Context, configPath string) error {
	if configPath == "" {
		configPath = config.ParseString(config.EnvPrefix+"CONFIG", "")
	}

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.Telemetry.ServiceName,
		Version: cfg.Version,
	})
	logger := log.WithComponent("daemon")

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config_source", source).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting booksync")
	logStartupSummary(cfg)

	if err := validation.PerformStartupChecks(ctx, cfg); err != nil {
		return err
	}

	rt, err := wire(ctx, cfg)
	if err != nil {
		return err
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     logger,
		APIHandler: rt.handler,
	})
	if err != nil {
		rt.closeAll(ctx)
		return fmt.Errorf("create daemon manager: %w", err)
	}
	for _, c := range rt.closers {
		mgr.RegisterShutdownHook(c.name, c.fn)
	}

	holder := config.NewConfigHolder(cfg, loader, configPath)
	app := daemon.NewApp(logger, mgr, holder, rt.runners...)
	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server exiting")
	return nil
}

func logStartupSummary(cfg config.AppConfig) {
	logger := log.WithComponent("daemon")
	logger.Info().Msgf("→ Store: %s", cfg.Store.Backend)
	logger.Info().Msgf("→ Payments: %s gateway (session ttl %s)", cfg.Payments.Gateway, cfg.Payments.SessionTTL)
	logger.Info().Msgf("→ Catalog: %d services", len(cfg.Catalog.Services))
	if cfg.RedisEnabled() {
		logger.Info().Msgf("→ Realtime: redis fan-out via %s on %q", cfg.Redis.Addr, cfg.Redis.Channel)
	} else {
		logger.Info().Msg("→ Realtime: single instance")
	}
	if cfg.AMQPEnabled() {
		logger.Info().Msgf("→ Notifications: %s exchange %q", config.MaskURL(cfg.AMQP.URL), cfg.AMQP.Exchange)
	}
	if cfg.Payments.Gateway == "mock" {
		logger.Warn().
			Str("security", "weak").
			Msg("→ Mock payment gateway active. Do not use in production.")
	}
}
