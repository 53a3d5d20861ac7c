package usecase

import (
	"context"
	"errors"
	"log/slog"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// SystemActorID marks transitions applied by internal machinery rather than an
// admin session.
const SystemActorID int64 = 0

// TransitionObserver is invoked synchronously after a successful transition.
type TransitionObserver func(ctx context.Context, order *model.Order, from model.OrderStatus)

// StateMachine validates and applies order status transitions.
type StateMachine struct {
	orders    repository.OrderRepository
	audit     repository.AuditRepository
	locks     *LockManager
	logger    *slog.Logger
	observers []TransitionObserver
}

// NewStateMachine constructs StateMachine.
func NewStateMachine(orders repository.OrderRepository, audit repository.AuditRepository, locks *LockManager, logger *slog.Logger) *StateMachine {
	return &StateMachine{orders: orders, audit: audit, locks: locks, logger: logger}
}

// RegisterObserver appends a post-transition hook. Registration happens during
// wiring, before the machine serves traffic.
func (sm *StateMachine) RegisterObserver(obs TransitionObserver) {
	sm.observers = append(sm.observers, obs)
}

// Transition moves the order to target under the order's lock.
func (sm *StateMachine) Transition(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error) {
	var result *model.Order
	err := sm.locks.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := sm.Apply(ctx, orderID, target, actorID)
		if err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Apply performs the transition without taking the lock; callers either hold
// it already or rely on the optimistic status comparison below. Re-applying
// the current status is a no-op success.
func (sm *StateMachine) Apply(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error) {
	order, err := sm.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == target {
		return order, nil
	}

	if !model.CanTransition(order.Status, target) {
		return nil, domainErrors.ErrInvalidTransition
	}

	if target.RequiresAssignment() && order.AssignedAgentID == nil {
		return nil, domainErrors.ErrMissingAssignment
	}

	updated, err := sm.orders.UpdateStatusCAS(ctx, orderID, order.Status, target)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			// Lost the optimistic race; re-read so replays stay idempotent.
			current, readErr := sm.orders.GetByID(ctx, orderID)
			if readErr != nil {
				return nil, readErr
			}
			if current.Status == target {
				return current, nil
			}
			return nil, domainErrors.ErrInvalidTransition
		}
		return nil, err
	}

	// Audit is best-effort: a trail write failure never rolls back the
	// transition, it is only logged.
	if err := sm.audit.AppendTransition(ctx, model.AuditRecord{
		OrderID:    orderID,
		ActorID:    actorID,
		FromStatus: order.Status,
		ToStatus:   target,
	}); err != nil {
		sm.logger.Error("audit append failed",
			slog.Int64("order_id", orderID),
			slog.String("from", string(order.Status)),
			slog.String("to", string(target)),
			slog.String("error", err.Error()))
	}

	for _, obs := range sm.observers {
		obs(ctx, updated, order.Status)
	}

	return updated, nil
}

// Assign sets the delivery agent for the order under its lock. The assignment
// gate for out_for_delivery and beyond checks this field.
func (sm *StateMachine) Assign(ctx context.Context, orderID, agentID, actorID int64) (*model.Order, error) {
	var result *model.Order
	err := sm.locks.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := sm.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return domainErrors.ErrInvalidTransition
		}
		updated, err := sm.orders.AssignAgent(ctx, orderID, agentID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AuditTrail returns the recorded transitions for the order.
func (sm *StateMachine) AuditTrail(ctx context.Context, orderID int64) ([]model.AuditRecord, error) {
	return sm.audit.ListTransitions(ctx, orderID)
}
