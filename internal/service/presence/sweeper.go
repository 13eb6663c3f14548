package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/logger"
)

type releaser interface {
	ReleaseDisconnected(ctx context.Context, isConnected func(uuid.UUID) bool) (int, error)
}

// Sweeper periodically releases presence held by users with no connection
type Sweeper struct {
	releaser    releaser
	isConnected func(uuid.UUID) bool
	interval    time.Duration
	timeout     time.Duration
}

// NewSweeper creates a sweeper ticking every interval
func NewSweeper(r releaser, isConnected func(uuid.UUID) bool, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = constants.ReconcileInterval
	}
	return &Sweeper{
		releaser:    r,
		isConnected: isConnected,
		interval:    interval,
		timeout:     constants.ReconcileTimeout,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Presence sweeper started", zap.Duration("interval", s.interval))

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Presence sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	released, err := s.releaser.ReleaseDisconnected(sweepCtx, s.isConnected)
	if err != nil {
		logger.Error("Presence sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		logger.Info("Released stale presence", zap.Int("users", released))
	}
}
