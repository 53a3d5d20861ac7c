package test

import (
	"context"

	"github.com/avoray/ordersync/internal/domain/model"
)

// OrderFacadeStub lets tests control order endpoint behaviour.
type OrderFacadeStub struct {
	CreateOrderFn func(context.Context, model.Order) (*model.Order, error)
	GetOrderFn    func(context.Context, int64) (*model.Order, error)
	TransitionFn  func(context.Context, int64, model.OrderStatus, int64) (*model.Order, error)
	AssignFn      func(context.Context, int64, int64, int64) (*model.Order, error)
	AuditTrailFn  func(context.Context, int64) ([]model.AuditRecord, error)
}

// CreateOrder delegates to the override or returns a stored order.
func (s *OrderFacadeStub) CreateOrder(ctx context.Context, order model.Order) (*model.Order, error) {
	if s.CreateOrderFn != nil {
		return s.CreateOrderFn(ctx, order)
	}
	order.ID = 1
	return &order, nil
}

// GetOrder delegates to the override or returns a default order.
func (s *OrderFacadeStub) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	if s.GetOrderFn != nil {
		return s.GetOrderFn(ctx, id)
	}
	return &model.Order{ID: id, Status: model.OrderStatusPending}, nil
}

// Transition delegates to the override or echoes the target status.
func (s *OrderFacadeStub) Transition(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error) {
	if s.TransitionFn != nil {
		return s.TransitionFn(ctx, orderID, target, actorID)
	}
	return &model.Order{ID: orderID, Status: target}, nil
}

// Assign delegates to the override or echoes the assignment.
func (s *OrderFacadeStub) Assign(ctx context.Context, orderID, agentID, actorID int64) (*model.Order, error) {
	if s.AssignFn != nil {
		return s.AssignFn(ctx, orderID, agentID, actorID)
	}
	return &model.Order{ID: orderID, AssignedAgentID: &agentID}, nil
}

// AuditTrail delegates to the override or returns nothing.
func (s *OrderFacadeStub) AuditTrail(ctx context.Context, orderID int64) ([]model.AuditRecord, error) {
	if s.AuditTrailFn != nil {
		return s.AuditTrailFn(ctx, orderID)
	}
	return nil, nil
}

// OpsFacadeStub lets tests control operational endpoints.
type OpsFacadeStub struct {
	DeadLettersFn     func(context.Context, int) ([]model.DeadLetterEntry, error)
	ReplayUnsettledFn func(context.Context, int) (int, error)
	HealthErr         error
}

// DeadLetters delegates to the override or returns nothing.
func (s *OpsFacadeStub) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	if s.DeadLettersFn != nil {
		return s.DeadLettersFn(ctx, limit)
	}
	return nil, nil
}

// ReplayUnsettled delegates to the override or reports zero links.
func (s *OpsFacadeStub) ReplayUnsettled(ctx context.Context, limit int) (int, error) {
	if s.ReplayUnsettledFn != nil {
		return s.ReplayUnsettledFn(ctx, limit)
	}
	return 0, nil
}

// Health returns the configured error.
func (s *OpsFacadeStub) Health(ctx context.Context) error {
	return s.HealthErr
}
