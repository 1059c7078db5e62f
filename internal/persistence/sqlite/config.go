// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sqlite opens SQLite databases with the pragmas every store relies on.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines standard SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	// TxLock is the BEGIN mode for write transactions ("deferred", "immediate", "exclusive").
	// Stores doing read-check-write under compare-and-set need "immediate" so a
	// losing writer waits on busy_timeout instead of failing with SQLITE_BUSY.
	TxLock string
}

// DefaultConfig returns the recommended configuration for the booking store.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
		TxLock:       "immediate",
	}
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs.
// WAL and busy_timeout are applied to every connection through the DSN.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	txLock := cfg.TxLock
	if txLock == "" {
		txLock = "deferred"
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=%s",
		dbPath, cfg.BusyTimeout.Milliseconds(), txLock)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
