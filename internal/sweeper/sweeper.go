// Package sweeper runs the periodic hygiene passes: expiring overdue visits
// and lifting bans whose expiry has passed. Correctness never depends on it;
// expiry is also applied live at check time.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// VisitSweep expires pending/confirmed visits past their grace window.
type VisitSweep interface {
	ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// BanSweep lifts bans whose expiry has passed.
type BanSweep interface {
	ExpireDueBans(ctx context.Context) (int, error)
}

// Sweeper drives both sweeps on one ticker.
type Sweeper struct {
	visits   VisitSweep
	bans     BanSweep
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
	batch    int
}

// New constructs a Sweeper.
func New(visits VisitSweep, bans BanSweep, logger *slog.Logger, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		visits:   visits,
		bans:     bans,
		logger:   logger,
		interval: interval,
		grace:    grace,
		batch:    500,
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()

	expiredVisits, err := s.visits.ExpireOverdue(ctx, s.grace, s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "visit expiry sweep failed", "error", err)
	}
	liftedBans, err := s.bans.ExpireDueBans(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "ban expiry sweep failed", "error", err)
	}

	if expiredVisits > 0 || liftedBans > 0 {
		s.logger.InfoContext(ctx, "sweep completed",
			"expired_visits", expiredVisits,
			"lifted_bans", liftedBans,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
