package worker

import (
	"context"
	"time"

	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/service"
)

// Recoverer applies the lease policy to stale and idle jobs.
type Recoverer interface {
	RecoverStale(ctx context.Context) (service.RecoveryStats, error)
}

// Sweeper periodically recovers jobs whose worker stopped heartbeating.
type Sweeper struct {
	recoverer Recoverer
	interval  time.Duration
}

// NewSweeper creates a sweeper ticking every interval.
func NewSweeper(recoverer Recoverer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{recoverer: recoverer, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.SetComponent(ctx, "sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one recovery pass.
func (s *Sweeper) Sweep(ctx context.Context) service.RecoveryStats {
	stats, err := s.recoverer.RecoverStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(ctx).WithError(err).Error("Lease sweep failed")
		}
		return stats
	}
	if stats != (service.RecoveryStats{}) {
		logger.FromContext(ctx).WithFields(logger.Fields{
			"requeued":   stats.Requeued,
			"failed":     stats.Failed,
			"reenqueued": stats.Reenqueued,
		}).Info("Lease sweep recovered jobs")
	}
	return stats
}
