package repository

import (
	"context"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
)

// OutboxRepository describes the durable notification queue.
type OutboxRepository interface {
	// Enqueue inserts the entry or, on dedupe-key conflict, merges variables
	// into the existing row and reopens it to queued if it had failed.
	Enqueue(ctx context.Context, entry model.OutboxEntry) (*model.OutboxEntry, error)
	// ClaimBatch selects due queued entries in (priority desc, scheduled_at
	// asc) order, marks them processing, and skips rows claimed elsewhere.
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error)
	MarkSent(ctx context.Context, id int64) error
	// RequeueStuck reopens processing entries untouched since cutoff, so a
	// crashed or interrupted worker cannot wedge its claims.
	RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error)
	// MarkFailed is terminal by policy (suppression, rate limit); no retry.
	MarkFailed(ctx context.Context, id int64, reason string) error
	Reschedule(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error
	// MoveToDeadLetter archives the entry and removes it from the live queue.
	MoveToDeadLetter(ctx context.Context, entry model.OutboxEntry, finalError string) (*model.DeadLetterEntry, error)
	ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error)
}
