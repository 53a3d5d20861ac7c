package handlers

import (
	"context"

	"github.com/avoray/ordersync/internal/app"
	"github.com/avoray/ordersync/internal/domain/model"
)

// WebhookFacade describes gateway event processing required by handlers.
type WebhookFacade interface {
	HandleGatewayEvent(ctx context.Context, idempotencyKey, fingerprint string, event app.GatewayEvent) ([]byte, bool, error)
}

// OrderFacade encapsulates order operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, order model.Order) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	Transition(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error)
	Assign(ctx context.Context, orderID, agentID, actorID int64) (*model.Order, error)
	AuditTrail(ctx context.Context, orderID int64) ([]model.AuditRecord, error)
}

// OpsFacade provides operational endpoints: dead-letter triage, manual
// reconciliation, health.
type OpsFacade interface {
	DeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error)
	ReplayUnsettled(ctx context.Context, limit int) (int, error)
	Health(ctx context.Context) error
}

// OrderSyncFacade aggregates the full set of operations used across handlers.
type OrderSyncFacade interface {
	WebhookFacade
	OrderFacade
	OpsFacade
}
