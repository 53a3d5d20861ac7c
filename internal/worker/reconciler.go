package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReconcilerFacade exposes the periodic maintenance operations the background
// reconciler drives.
type ReconcilerFacade interface {
	ReplayUnsettled(ctx context.Context, limit int) (int, error)
	RequeueStuckNotifications(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeIdempotency(ctx context.Context) (int64, error)
	ReapLocks(ctx context.Context) (int64, error)
}

// ReconcilerConfig tunes the background reconciliation loop. StuckAfter is
// how long an outbox claim may sit in processing before it is considered
// abandoned.
type ReconcilerConfig struct {
	Interval   time.Duration
	BatchSize  int
	StuckAfter time.Duration
}

// Reconciler periodically replays unsettled payment transactions against
// newly created orders and sweeps expired locks and idempotency records.
type Reconciler struct {
	facade ReconcilerFacade
	cfg    ReconcilerConfig
	logger *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewReconciler constructs the background reconciler.
func NewReconciler(facade ReconcilerFacade, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = time.Minute
	}
	return &Reconciler{facade: facade, cfg: cfg, logger: logger}
}

// Start launches the reconciliation loop. The run context is detached from
// ctx so a short-lived startup context cannot end the loop; Stop is the only
// shutdown path.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(runCtx)
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	linked, err := r.facade.ReplayUnsettled(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("replay unsettled failed", slog.String("error", err.Error()))
	} else if linked > 0 {
		r.logger.Info("orphaned transactions linked", slog.Int("count", linked))
	}

	if requeued, err := r.facade.RequeueStuckNotifications(ctx, r.cfg.StuckAfter); err != nil {
		r.logger.Error("stuck notification requeue failed", slog.String("error", err.Error()))
	} else if requeued > 0 {
		r.logger.Warn("abandoned notification claims reopened", slog.Int64("count", requeued))
	}

	if purged, err := r.facade.PurgeIdempotency(ctx); err != nil {
		r.logger.Error("idempotency purge failed", slog.String("error", err.Error()))
	} else if purged > 0 {
		r.logger.Info("idempotency records purged", slog.Int64("count", purged))
	}

	if reaped, err := r.facade.ReapLocks(ctx); err != nil {
		r.logger.Error("lock reap failed", slog.String("error", err.Error()))
	} else if reaped > 0 {
		r.logger.Info("expired locks reaped", slog.Int64("count", reaped))
	}
}
