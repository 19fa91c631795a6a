package server

import (
	"context"
	"log/slog"
	"time"

	"opsgate/internal/platform/metrics"
)

// ExpirySweeper is the part of refreshtoken.Ledger the sweeper needs.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// CounterPruner drops ended admission windows (admission.MemoryStore). Redis expires keys itself.
type CounterPruner interface {
	Prune(ctx context.Context) (int, error)
}

// Sweeper periodically deletes expired refresh records and prunes in-process admission counters.
type Sweeper struct {
	ledger   ExpirySweeper
	pruner   CounterPruner
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSweeper returns a Sweeper. pruner may be nil.
func NewSweeper(ledger ExpirySweeper, pruner CounterPruner, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, pruner: pruner, interval: interval, metrics: m, logger: logger}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass. Failures are logged and retried on the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	n, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep expired refresh records failed", "error", err)
	} else {
		s.metrics.AddSwept(n)
		if n > 0 {
			s.logger.InfoContext(ctx, "swept expired refresh records", "count", n)
		}
	}
	if s.pruner == nil {
		return
	}
	if pruned, err := s.pruner.Prune(ctx); err != nil {
		s.logger.ErrorContext(ctx, "prune admission counters failed", "error", err)
	} else if pruned > 0 {
		s.logger.DebugContext(ctx, "pruned admission counters", "count", pruned)
	}
}
