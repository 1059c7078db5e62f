// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validation runs pre-flight checks against the environment before
// the daemon opens its stores and starts serving.
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/log"
)

// PerformStartupChecks validates what config.Validate cannot: the state of
// the filesystem and deployment-level combinations.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if b := cfg.Store.Backend; b != "memory" && b != "" {
		if err := checkDataDir(logger, cfg.Store.Path); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}
	if len(cfg.Catalog.Services) == 0 {
		logger.Warn().Msg("catalog is empty; every booking request will be rejected")
	}
	if cfg.Payments.Gateway == "mock" && cfg.Telemetry.Environment == "production" {
		return errors.New("mock payment gateway is not allowed in production")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// checkDataDir creates path if needed and proves it is writable.
func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	marker := filepath.Join(path, ".write_test")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(marker)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}
