// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/config"
)

func baseConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.Store.Backend = "memory"
	cfg.Payments.Gateway = "stripe"
	cfg.Telemetry.Environment = "development"
	cfg.Catalog.Services = []config.ServiceEntry{{ID: "svc", ProviderID: "p", Price: "10.00"}}
	return cfg
}

func TestStartupChecks_MemoryNeedsNoDir(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Path = "/nonexistent/never/created"
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
}

func TestStartupChecks_CreatesDataDir(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "data")

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	info, err := os.Stat(cfg.Store.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(cfg.Store.Path, ".write_test"))
	assert.True(t, os.IsNotExist(err), "marker file must be removed")
}

func TestStartupChecks_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "store")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	cfg := baseConfig()
	cfg.Store.Backend = "badger"
	cfg.Store.Path = file
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}

func TestStartupChecks_MockGatewayInProduction(t *testing.T) {
	cfg := baseConfig()
	cfg.Payments.Gateway = "mock"
	cfg.Telemetry.Environment = "production"
	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock payment gateway")
}
