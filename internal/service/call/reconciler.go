package call

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

// ReconcileResult summarizes one sweep
type ReconcileResult struct {
	Skipped bool
	Scanned int
	Changed int
	Failed  int
}

// Reconcile advances scheduled and active calls against the wall clock.
// Only one sweep runs at a time; an overlapping call returns Skipped.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if !s.reconciling.CompareAndSwap(false, true) {
		metrics.CallReconcileSkippedTotal.Inc()
		return ReconcileResult{Skipped: true}, nil
	}
	defer s.reconciling.Store(false)

	start := time.Now()
	defer func() { metrics.CallReconcileDuration.Observe(time.Since(start).Seconds()) }()

	calls, err := s.repo.ListOpen(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	result := ReconcileResult{Scanned: len(calls)}
	now := s.now()
	for _, call := range calls {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		target, ok := dueStatus(call, now)
		if !ok {
			continue
		}

		snapshot, err := s.transition(ctx, call.CallID, call.Status, target)
		if err != nil {
			result.Failed++
			logger.Error("Failed to reconcile call",
				zap.String("call_id", call.CallID.String()),
				zap.String("from", string(call.Status)),
				zap.String("to", string(target)),
				zap.Error(err))
			continue
		}
		if snapshot != nil {
			result.Changed++
		}
	}
	return result, nil
}

// dueStatus returns the status a call should be in at now, if it differs
func dueStatus(call *domain.Call, now time.Time) (domain.CallStatus, bool) {
	start := call.Schedule.ScheduledStart
	end := call.Schedule.ScheduledEnd
	pastEnd := end != nil && !now.Before(*end)

	switch call.Status {
	case domain.CallStatusScheduled:
		if pastEnd {
			return domain.CallStatusEnded, true
		}
		if start != nil && !now.Before(*start) {
			return domain.CallStatusActive, true
		}
	case domain.CallStatusActive:
		if pastEnd {
			return domain.CallStatusEnded, true
		}
	}
	return "", false
}

type sweeper interface {
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

// Reconciler runs the sweep on a fixed interval
type Reconciler struct {
	sweeper  sweeper
	interval time.Duration
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler ticking every interval
func NewReconciler(s sweeper, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = constants.ReconcileInterval
	}
	return &Reconciler{
		sweeper:  s,
		interval: interval,
		timeout:  constants.ReconcileTimeout,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Each sweep runs in its own goroutine so the ticker is never blocked.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("Call reconciler started", zap.Duration("interval", r.interval))

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			logger.Info("Call reconciler stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Call reconciliation panicked", zap.Any("panic", rec))
			}
		}()

		sweepCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		result, err := r.sweeper.Reconcile(sweepCtx)
		if err != nil {
			logger.Error("Call reconciliation failed", zap.Error(err))
			return
		}
		if result.Skipped {
			logger.Debug("Call reconciliation skipped, previous sweep still running")
			return
		}
		if result.Changed > 0 || result.Failed > 0 {
			logger.Info("Call reconciliation finished",
				zap.Int("scanned", result.Scanned),
				zap.Int("changed", result.Changed),
				zap.Int("failed", result.Failed))
		}
	}()
}
