// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// SqliteFileName is the database file created under the store path.
const SqliteFileName = "bookings.sqlite"

// OpenStateStore opens the configured backend. path is a directory for
// badger and a directory holding SqliteFileName for sqlite.
func OpenStateStore(backend, path string) (StateStore, error) {
	switch backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return NewSqliteStore(filepath.Join(path, SqliteFileName))
	case "badger":
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
