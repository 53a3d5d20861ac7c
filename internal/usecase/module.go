package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/config"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(
	newLockManager,
	NewStateMachine,
	NewReconciliationEngine,
	newIdempotencyCache,
	newNotificationPlanner,
)

type lockParams struct {
	fx.In

	Locks  repository.LockRepository
	Config *config.Config
	Logger *slog.Logger
}

func newLockManager(p lockParams) *LockManager {
	return NewLockManager(p.Locks, p.Config.LockTTL, p.Config.LockRetries, p.Config.LockRetryDelay, p.Logger)
}

type idempotencyParams struct {
	fx.In

	Records repository.IdempotencyRepository
	Config  *config.Config
	Logger  *slog.Logger
}

func newIdempotencyCache(p idempotencyParams) *IdempotencyCache {
	return NewIdempotencyCache(p.Records, p.Config.IdempotencyTTL, p.Logger)
}

type plannerParams struct {
	fx.In

	Outbox repository.OutboxRepository
	Config *config.Config
	Logger *slog.Logger
}

func newNotificationPlanner(p plannerParams) *NotificationPlanner {
	return NewNotificationPlanner(p.Outbox, p.Config.CoalescingWindow, p.Logger)
}
