package repository

import (
	"context"

	"github.com/avoray/ordersync/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
	GetByPaymentReference(ctx context.Context, reference string) (*model.Order, error)
	// UpdateStatusCAS flips status only if the row still carries the expected
	// one; a lost race reports domain ErrNotFound via zero rows affected.
	UpdateStatusCAS(ctx context.Context, orderID int64, expected, next model.OrderStatus) (*model.Order, error)
	AssignAgent(ctx context.Context, orderID, agentID int64) (*model.Order, error)
}
