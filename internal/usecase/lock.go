package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// LockManager serializes conflicting updates to one order through short-TTL
// lock rows. Acquisition never blocks indefinitely.
type LockManager struct {
	locks      repository.LockRepository
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewLockManager constructs LockManager.
func NewLockManager(locks repository.LockRepository, ttl time.Duration, retries int, retryDelay time.Duration, logger *slog.Logger) *LockManager {
	if retries <= 0 {
		retries = 1
	}
	return &LockManager{locks: locks, ttl: ttl, retries: retries, retryDelay: retryDelay, logger: logger}
}

// Acquire attempts to take the order's lock with bounded retries. Returns the
// holder id to release with, or ErrLockBusy when contention persists.
func (m *LockManager) Acquire(ctx context.Context, orderID int64) (string, error) {
	holderID := uuid.NewString()
	lockKey := fmt.Sprintf("order:%d", orderID)

	for attempt := 0; attempt < m.retries; attempt++ {
		acquired, err := m.locks.TryAcquire(ctx, orderID, lockKey, holderID, m.ttl)
		if err != nil {
			return "", err
		}
		if acquired {
			return holderID, nil
		}
		if attempt < m.retries-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
	}
	return "", domainErrors.ErrLockBusy
}

// Release gives the lock back. Only the current holder may release; a holder
// whose TTL lapsed gets ErrLockExpired instead of clobbering a newer lock.
func (m *LockManager) Release(ctx context.Context, orderID int64, holderID string) error {
	released, err := m.locks.Release(ctx, orderID, holderID)
	if err != nil {
		return err
	}
	if !released {
		return domainErrors.ErrLockExpired
	}
	return nil
}

// WithLock runs fn while holding the order's lock.
func (m *LockManager) WithLock(ctx context.Context, orderID int64, fn func(ctx context.Context) error) error {
	holderID, err := m.Acquire(ctx, orderID)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Release(context.WithoutCancel(ctx), orderID, holderID); err != nil {
			m.logger.Warn("order lock release failed",
				slog.Int64("order_id", orderID),
				slog.String("error", err.Error()))
		}
	}()

	return fn(ctx)
}

// ReapExpired releases all locks past their TTL.
func (m *LockManager) ReapExpired(ctx context.Context) (int64, error) {
	return m.locks.ReapExpired(ctx)
}
