// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/version"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  booksync config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  booksync config dump [--file|-f config.yaml] [--format=yaml|json] [--out path]")
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("booksync config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", describeSource(configPath), err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s is valid\n", describeSource(configPath))
	return 0
}

// runConfigDump prints the effective configuration (defaults, file, env)
// with secrets masked. With --out the dump replaces path atomically.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("booksync config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, format, out string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.StringVar(&out, "out", "", "write the dump to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", describeSource(configPath), err)
		return 1
	}

	var buf bytes.Buffer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		buf.WriteString(cfg.String())
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(config.MaskSecrets(cfg)); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}

	out = strings.TrimSpace(out)
	if out == "" {
		_, _ = stdout.Write(buf.Bytes())
		return 0
	}
	if err := writeFileAtomic(out, buf.Bytes()); err != nil {
		fmt.Fprintf(stderr, "Failed to write %s: %v\n", out, err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ wrote %s\n", out)
	return 0
}

// writeFileAtomic fsyncs data to a temp file and renames it over path, so
// readers never observe a partial dump.
func writeFileAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}

func describeSource(path string) string {
	if path == "" {
		return "environment configuration"
	}
	return path
}
