package postgres

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/config"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// Module wires PostgreSQL storage and repository adapters.
var Module = fx.Options(
	fx.Provide(newStorage),
	fx.Provide(
		func(s *Storage) repository.OrderRepository { return s.Orders() },
		func(s *Storage) repository.PaymentTransactionRepository { return s.Payments() },
		func(s *Storage) repository.LockRepository { return s.Locks() },
		func(s *Storage) repository.IdempotencyRepository { return s.Idempotency() },
		func(s *Storage) repository.OutboxRepository { return s.Outbox() },
		func(s *Storage) repository.AuditRepository { return s.Audit() },
	),
	fx.Invoke(registerLifecycle),
)

type storageParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

func newStorage(p storageParams) (*Storage, error) {
	return New(p.Ctx, p.Config.DatabaseURI, p.Logger)
}

func registerLifecycle(lc fx.Lifecycle, storage *Storage) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			storage.Close()
			return nil
		},
	})
}
