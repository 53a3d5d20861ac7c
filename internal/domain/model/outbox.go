package model

import (
	"fmt"
	"time"
)

// EventType names the order lifecycle events that trigger notifications.
type EventType string

const (
	EventOrderConfirmed  EventType = "order.confirmed"
	EventOrderDispatched EventType = "order.out_for_delivery"
	EventOrderDelivered  EventType = "order.delivered"
	EventOrderCancelled  EventType = "order.cancelled"
	EventOrderRefunded   EventType = "order.refunded"
	EventPaymentMismatch EventType = "payment.amount_mismatch"
	EventPaymentOrphaned EventType = "payment.orphaned"
)

// OutboxStatus tracks delivery progress of a queued notification.
type OutboxStatus string

const (
	OutboxStatusQueued     OutboxStatus = "queued"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed"
	OutboxStatusCancelled  OutboxStatus = "cancelled"
)

// Priority orders outbox draining; higher drains first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank maps priority to a sortable weight.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// OutboxEntry is a durable pending notification written alongside the state
// change that caused it.
type OutboxEntry struct {
	ID           int64
	EventType    EventType
	OrderID      int64
	Recipient    string
	TemplateKey  string
	Variables    map[string]string
	DedupeKey    string
	Status       OutboxStatus
	Priority     Priority
	RetryCount   int
	ScheduledAt  time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeadLetterEntry archives a notification that exhausted its retry budget.
type DeadLetterEntry struct {
	ID              int64
	OriginalEntryID int64
	OrderID         int64
	EventType       EventType
	Recipient       string
	FinalError      string
	TotalAttempts   int
	MovedAt         time.Time
}

// DedupeKey derives the coalescing key for a notification trigger. The window
// bucket is part of the key, so identical triggers inside one window share it.
func DedupeKey(orderID int64, eventType EventType, recipient string, at time.Time, window time.Duration) string {
	bucket := at.Truncate(window).Unix()
	return fmt.Sprintf("%d:%s:%s:%d", orderID, eventType, recipient, bucket)
}
