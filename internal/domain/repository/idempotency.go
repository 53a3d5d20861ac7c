package repository

import (
	"context"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
)

// IdempotencyRepository describes the replay cache for external entry points.
type IdempotencyRepository interface {
	// Begin inserts a processing record for the key. When the key already
	// exists the stored record is returned and created is false; the decision
	// relies on the storage layer's insert-or-conflict atomicity.
	Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (created bool, existing *model.IdempotencyRecord, err error)
	Complete(ctx context.Context, key string, status model.IdempotencyStatus, payload []byte) error
	PurgeExpired(ctx context.Context) (int64, error)
}
