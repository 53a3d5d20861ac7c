package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avoray/ordersync/internal/adapter/sender"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/pkg/ratelimit"
)

// OutboxFacade exposes the subset of application functionality required by the
// delivery worker.
type OutboxFacade interface {
	ClaimDueNotifications(ctx context.Context, limit int) ([]model.OutboxEntry, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
	RescheduleNotification(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error
	DeadLetterNotification(ctx context.Context, entry model.OutboxEntry, finalError string) error
	IsSuppressed(ctx context.Context, recipient string) (bool, error)
	SendNotification(ctx context.Context, entry model.OutboxEntry) (*sender.Result, error)
}

// OutboxConfig tunes the delivery worker pool.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	SendTimeout  time.Duration
}

// OutboxWorker drains the notification outbox concurrently, applying
// suppression, rate limiting, retry with backoff, and dead-lettering.
type OutboxWorker struct {
	facade  OutboxFacade
	limiter *ratelimit.Limiter
	cfg     OutboxConfig
	logger  *slog.Logger

	jobs   chan model.OutboxEntry
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
	now    func() time.Time
}

// NewOutboxWorker constructs the outbox worker pool.
func NewOutboxWorker(facade OutboxFacade, limiter *ratelimit.Limiter, cfg OutboxConfig, logger *slog.Logger) *OutboxWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &OutboxWorker{
		facade:  facade,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan model.OutboxEntry, cfg.BatchSize*cfg.Workers),
		now:     time.Now,
	}
}

// Start launches background processing. The run context is detached from
// ctx: lifecycle startup contexts die when startup finishes, and the loops
// must outlive them. Stop is the only shutdown path.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.worker(runCtx)
	}

	w.wg.Add(1)
	go w.dispatch(runCtx)
}

// Stop waits for all workers to finish.
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *OutboxWorker) dispatch(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.jobs)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fetchAndDispatch(ctx)
		}
	}
}

func (w *OutboxWorker) fetchAndDispatch(ctx context.Context) {
	entries, err := w.facade.ClaimDueNotifications(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("claim outbox batch failed", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		case w.jobs <- entry:
		}
	}
}

func (w *OutboxWorker) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-w.jobs:
			if !ok {
				return
			}
			w.handleEntry(ctx, entry)
		}
	}
}

func (w *OutboxWorker) handleEntry(ctx context.Context, entry model.OutboxEntry) {
	suppressed, err := w.facade.IsSuppressed(ctx, entry.Recipient)
	if err != nil {
		// Consent store unavailable is transient; retry later.
		w.retryOrBury(ctx, entry, "consent check failed: "+err.Error())
		return
	}
	if suppressed {
		if err := w.facade.MarkNotificationFailed(ctx, entry.ID, "recipient on suppression list"); err != nil {
			w.logger.Error("mark failed errored", slog.Int64("entry_id", entry.ID), slog.String("error", err.Error()))
		}
		return
	}

	// Quota exhaustion is terminal by policy and consumes no retry.
	if !w.limiter.Allow(entry.Recipient) {
		if err := w.facade.MarkNotificationFailed(ctx, entry.ID, "recipient rate limit exceeded"); err != nil {
			w.logger.Error("mark failed errored", slog.Int64("entry_id", entry.ID), slog.String("error", err.Error()))
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	result, err := w.facade.SendNotification(sendCtx, entry)
	cancel()

	switch {
	case err != nil:
		w.limiter.ReportFailure(entry.Recipient)
		w.retryOrBury(ctx, entry, err.Error())
	case !result.Success:
		w.limiter.ReportFailure(entry.Recipient)
		w.retryOrBury(ctx, entry, result.Reason)
	default:
		w.limiter.ReportSuccess(entry.Recipient)
		if err := w.facade.MarkNotificationSent(ctx, entry.ID); err != nil {
			w.logger.Error("mark sent errored", slog.Int64("entry_id", entry.ID), slog.String("error", err.Error()))
		}
	}
}

func (w *OutboxWorker) retryOrBury(ctx context.Context, entry model.OutboxEntry, reason string) {
	attempts := entry.RetryCount + 1
	if attempts >= w.cfg.MaxRetries {
		entry.RetryCount = attempts
		if err := w.facade.DeadLetterNotification(ctx, entry, reason); err != nil {
			w.logger.Error("dead-letter move failed", slog.Int64("entry_id", entry.ID), slog.String("error", err.Error()))
		} else {
			w.logger.Warn("notification dead-lettered",
				slog.Int64("entry_id", entry.ID),
				slog.String("recipient", entry.Recipient),
				slog.Int("attempts", attempts))
		}
		return
	}

	next := w.now().Add(w.backoff(attempts))
	if err := w.facade.RescheduleNotification(ctx, entry.ID, attempts, next, reason); err != nil {
		w.logger.Error("reschedule failed", slog.Int64("entry_id", entry.ID), slog.String("error", err.Error()))
	}
}

// backoff computes base * 2^attempt capped at the configured maximum.
func (w *OutboxWorker) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 0; i < attempt && d < w.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > w.cfg.BackoffCap {
		d = w.cfg.BackoffCap
	}
	return d
}
