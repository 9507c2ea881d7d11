package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Scheduler refreshes every feed on startup and then periodically, each time
// over the trailing lookback window.
type Scheduler struct {
	pipeline     *Pipeline
	clock        clockwork.Clock
	interval     time.Duration
	lookbackDays int
	logger       *slog.Logger
}

// NewScheduler creates a Scheduler for p.
func NewScheduler(p *Pipeline, clock clockwork.Clock, interval time.Duration, lookbackDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline:     p,
		clock:        clock,
		interval:     interval,
		lookbackDays: lookbackDays,
		logger:       logger,
	}
}

// DefaultRange returns the trailing lookback window ending now.
func (s *Scheduler) DefaultRange() domain.DateRange {
	return domain.LastDays(s.clock.Now(), s.lookbackDays)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "lookback_days", s.lookbackDays)
	s.refresh(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	if err := s.pipeline.RefreshAll(ctx, s.DefaultRange()); err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduled refresh had failures", "error", err)
	}
}
