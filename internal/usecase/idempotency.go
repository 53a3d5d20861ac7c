package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// IdempotencyCache makes externally triggered entry points replay-safe: the
// first call with a key runs, subsequent calls get the memoized response.
type IdempotencyCache struct {
	records repository.IdempotencyRepository
	ttl     time.Duration
	logger  *slog.Logger
}

// NewIdempotencyCache constructs IdempotencyCache.
func NewIdempotencyCache(records repository.IdempotencyRepository, ttl time.Duration, logger *slog.Logger) *IdempotencyCache {
	return &IdempotencyCache{records: records, ttl: ttl, logger: logger}
}

// Fingerprint hashes a request body for comparison across replays.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Execute runs fn at most once per key. A completed replay returns the cached
// payload with replayed=true; a concurrent in-flight call gets
// ErrInFlightConflict instead of re-executing side effects. Failed records are
// retried.
func (c *IdempotencyCache) Execute(ctx context.Context, key, fingerprint string, fn func(ctx context.Context) ([]byte, error)) (payload []byte, replayed bool, err error) {
	created, existing, err := c.records.Begin(ctx, key, fingerprint, c.ttl)
	if err != nil {
		return nil, false, err
	}

	if !created && existing != nil {
		switch existing.Status {
		case model.IdempotencyStatusSuccess:
			return existing.ResponsePayload, true, nil
		case model.IdempotencyStatusProcessing:
			return nil, false, domainErrors.ErrInFlightConflict
		}
		// Failed records fall through and re-execute.
	}

	payload, err = fn(ctx)
	if err != nil {
		if completeErr := c.records.Complete(ctx, key, model.IdempotencyStatusFailed, nil); completeErr != nil {
			c.logger.Error("idempotency record completion failed",
				slog.String("key", key),
				slog.String("error", completeErr.Error()))
		}
		return nil, false, err
	}

	if completeErr := c.records.Complete(ctx, key, model.IdempotencyStatusSuccess, payload); completeErr != nil {
		c.logger.Error("idempotency record completion failed",
			slog.String("key", key),
			slog.String("error", completeErr.Error()))
	}
	return payload, false, nil
}

// PurgeExpired garbage-collects records past their TTL.
func (c *IdempotencyCache) PurgeExpired(ctx context.Context) (int64, error) {
	return c.records.PurgeExpired(ctx)
}
