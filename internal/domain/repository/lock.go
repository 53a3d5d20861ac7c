package repository

import (
	"context"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
)

// LockRepository describes the short-TTL per-order mutual exclusion records.
type LockRepository interface {
	// TryAcquire reaps an expired lock on the order, then attempts to insert a
	// new one. False means another unexpired holder owns the order.
	TryAcquire(ctx context.Context, orderID int64, lockKey, holderID string, ttl time.Duration) (bool, error)
	// Release marks the lock released only when holderID matches the current
	// holder; a stale holder cannot clobber a re-acquired lock.
	Release(ctx context.Context, orderID int64, holderID string) (bool, error)
	Get(ctx context.Context, orderID int64) (*model.OrderLock, error)
	ReapExpired(ctx context.Context) (int64, error)
}
