package dto

import "time"

// CreateOrderRequest registers a new order.
type CreateOrderRequest struct {
	Number           string  `json:"number"`
	CustomerEmail    string  `json:"customer_email"`
	TotalAmount      float64 `json:"total_amount"`
	Type             string  `json:"type,omitempty"`
	PaymentReference *string `json:"payment_reference,omitempty"`
}

// TransitionRequest asks for an order status change.
type TransitionRequest struct {
	Status  string `json:"status"`
	ActorID int64  `json:"actor_id"`
}

// AssignRequest sets the order's delivery agent.
type AssignRequest struct {
	AgentID int64 `json:"agent_id"`
	ActorID int64 `json:"actor_id"`
}

// OrderResponse represents an order over the wire.
type OrderResponse struct {
	ID               int64      `json:"id"`
	Number           string     `json:"number"`
	CustomerEmail    string     `json:"customer_email,omitempty"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	TotalAmount      float64    `json:"total_amount"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	AssignedAgentID  *int64     `json:"assigned_agent_id,omitempty"`
	Type             string     `json:"type"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AuditRecordResponse is one entry of the order transition trail.
type AuditRecordResponse struct {
	ActorID    int64     `json:"actor_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DeadLetterResponse describes an archived notification.
type DeadLetterResponse struct {
	ID              int64     `json:"id"`
	OriginalEntryID int64     `json:"original_entry_id"`
	OrderID         int64     `json:"order_id"`
	EventType       string    `json:"event_type"`
	Recipient       string    `json:"recipient"`
	FinalError      string    `json:"final_error"`
	TotalAttempts   int       `json:"total_attempts"`
	MovedAt         time.Time `json:"moved_at"`
}

// ReconcileResponse reports a manual reconciliation sweep.
type ReconcileResponse struct {
	Linked int `json:"linked"`
}
