// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command checkout-poll waits for a checkout session to resolve, following
// the same bounded polling contract as the web client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/booksync/internal/checkoutpoll"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkout-poll", flag.ContinueOnError)
	fs.SetOutput(stderr)
	base := fs.String("url", "http://localhost:8080", "base URL of the booking API")
	token := fs.String("token", os.Getenv("BOOKSYNC_TOKEN"), "bearer token (default $BOOKSYNC_TOKEN)")
	attempts := fs.Int("attempts", checkoutpoll.DefaultAttempts, "maximum status reads")
	interval := fs.Duration("interval", checkoutpoll.DefaultInterval, "spacing between reads")
	timeout := fs.Duration("timeout", 5*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: checkout-poll [flags] <session_id>")
		return 2
	}
	sessionID := strings.TrimSpace(fs.Arg(0))

	p := checkoutpoll.New(checkoutpoll.NewHTTPFetcher(*base, *token, *timeout))
	p.Attempts = *attempts
	p.Interval = *interval
	p.OnAttempt = func(n int, o checkoutpoll.Outcome) {
		fmt.Fprintf(stderr, "attempt %d/%d: %s\n", n, p.Attempts, o)
	}

	res, err := p.Poll(ctx, sessionID)
	fmt.Fprintln(stdout, res.Outcome)
	switch {
	case errors.Is(err, checkoutpoll.ErrPaymentTimeout):
		fmt.Fprintln(stderr, "payment not confirmed yet; poll again later")
		return 3
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	case res.Outcome == checkoutpoll.OutcomeFailed:
		return 4
	}
	if res.Last.BookingID != "" {
		fmt.Fprintf(stderr, "booking %s confirmed\n", res.Last.BookingID)
	}
	return 0
}
