package model

import "time"

// OrderStatus describes order lifecycle.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// PaymentStatus describes payment settlement state of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// OrderType distinguishes fulfilment modes.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// Order is the aggregate kept consistent with its payment transaction.
type Order struct {
	ID               int64
	Number           string
	CustomerEmail    string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	TotalAmount      float64
	PaymentReference *string
	AssignedAgentID  *int64
	Type             OrderType
	PaidAt           *time.Time
	VerifiedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// transitions is the adjacency table of allowed status changes.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusPreparing:      {OrderStatusReady, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusReady:          {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusDelivered:      {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:      {},
	OrderStatusCancelled:      {},
	OrderStatusRefunded:       {},
}

// CanTransition reports whether the adjacency table allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// RequiresAssignment reports whether entering status needs an assigned agent.
func (s OrderStatus) RequiresAssignment() bool {
	switch s {
	case OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}

// IsEarly reports whether the order has not progressed past confirmation;
// reconciliation only advances such orders.
func (s OrderStatus) IsEarly() bool {
	return s == OrderStatusPending
}
