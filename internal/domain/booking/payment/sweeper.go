// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
)

// Sweeper closes open checkout sessions whose expiry has passed.
type Sweeper struct {
	Worker   *Worker
	Interval time.Duration
}

// Run calls SweepOnce on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	l := log.WithComponent("payment")
	l.Info().Dur("interval", s.Interval).Msg("checkout sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				l.Warn().Err(err).Msg("checkout sweep failed")
			}
		}
	}
}

// SweepOnce reconciles every overdue open session and returns how many it
// closed. The gateway is asked first so a late or settling payment is not
// lost.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	w := s.Worker
	due, err := w.store.ListOpenSessions(ctx, w.now())
	if err != nil {
		return 0, err
	}

	l := log.WithComponent("payment")
	closed := 0
	for _, cs := range due {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		ext := w.overdueStatus(ctx, cs.ID)
		if ext == model.ExternalProcessing {
			l.Debug().Str(log.FieldSessionID, cs.ID).Msg("payment settling, session kept open")
			continue
		}
		_, outcome, err := w.reconcile(ctx, cs.ID, ext, SourceSweep)
		if err != nil {
			if !errors.Is(err, ErrSessionExpired) {
				l.Warn().Err(err).Str(log.FieldSessionID, cs.ID).Msg("sweep reconcile failed")
			}
			continue
		}
		if outcome != OutcomeNoop {
			closed++
		}
	}
	if closed > 0 {
		metrics.AddSweptSessions(closed)
		l.Info().Int("closed", closed).Msg("swept overdue checkout sessions")
	}
	return closed, nil
}
