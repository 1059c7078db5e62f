// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/persistence/sqlite"
	"github.com/ManuGH/booksync/internal/version"
)

func runStoreCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printStoreUsage(stderr)
		return 0
	}
	switch args[0] {
	case "verify":
		return runStoreVerify(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printStoreUsage(stderr)
		return 2
	}
}

func printStoreUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  booksync store verify [--path FILE | --file config.yaml] [--mode quick|full]")
}

// runStoreVerify checks the SQLite booking store for corruption. Without
// --path the database is located through the effective configuration.
func runStoreVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("booksync store verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var path, file, mode string
	fs.StringVar(&path, "path", "", "path to the SQLite database file")
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&mode, "mode", "quick", "verification mode: quick or full")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "quick" && mode != "full" {
		fmt.Fprintf(stderr, "Error: invalid mode %q. Use 'quick' or 'full'.\n", mode)
		return 2
	}

	if path == "" {
		cfg, err := config.NewLoader(strings.TrimSpace(file), version.Version).Load()
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
			return 1
		}
		if cfg.Store.Backend != "sqlite" {
			fmt.Fprintf(stderr, "Error: store backend is %q; only sqlite can be verified\n", cfg.Store.Backend)
			return 2
		}
		path = filepath.Join(cfg.Store.Path, store.SqliteFileName)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	issues, err := sqlite.VerifyIntegrity(context.Background(), db, mode)
	if err != nil {
		fmt.Fprintf(stderr, "Verification interrupted: %v\n", err)
		return 1
	}
	if issues != nil {
		fmt.Fprintf(stderr, "Corruption detected in %s:\n", path)
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s passed %s integrity check\n", path, mode)
	return 0
}
