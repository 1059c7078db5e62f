// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/version"
)

// runTokenCLI signs a bearer token with the configured secret. Meant for
// local testing against the mock gateway.
func runTokenCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("booksync token", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, subject, role string
	var ttl time.Duration
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&subject, "sub", "", "actor id")
	fs.StringVar(&role, "role", string(model.RoleCustomer), "customer, provider or admin")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Fprintln(stderr, "Error: --sub is required")
		return 2
	}
	r := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		fmt.Fprintf(stderr, "Error: unknown role %q\n", role)
		return 2
	}

	cfg, err := config.NewLoader(strings.TrimSpace(file), version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	v, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	tok, err := v.Issue(subject, r, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, tok)
	return 0
}
