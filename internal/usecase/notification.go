package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// AdminRecipient receives operational alerts (mismatch incidents and the
// like) when no explicit recipient applies.
const AdminRecipient = "ops@ordersync.local"

// notifiable maps transition targets to customer notification events.
var notifiable = map[model.OrderStatus]struct {
	event    model.EventType
	priority model.Priority
}{
	model.OrderStatusConfirmed:      {model.EventOrderConfirmed, model.PriorityNormal},
	model.OrderStatusOutForDelivery: {model.EventOrderDispatched, model.PriorityNormal},
	model.OrderStatusDelivered:      {model.EventOrderDelivered, model.PriorityNormal},
	model.OrderStatusCancelled:      {model.EventOrderCancelled, model.PriorityHigh},
	model.OrderStatusRefunded:       {model.EventOrderRefunded, model.PriorityHigh},
}

// NotificationPlanner turns state changes into deduplicated outbox entries.
type NotificationPlanner struct {
	outbox repository.OutboxRepository
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationPlanner constructs NotificationPlanner.
func NewNotificationPlanner(outbox repository.OutboxRepository, window time.Duration, logger *slog.Logger) *NotificationPlanner {
	return &NotificationPlanner{outbox: outbox, window: window, logger: logger, now: time.Now}
}

// Enqueue records a pending notification. Repeated triggers for the same
// logical event inside one coalescing window collapse into the existing entry.
func (p *NotificationPlanner) Enqueue(ctx context.Context, eventType model.EventType, orderID int64, recipient, templateKey string, variables map[string]string, priority model.Priority) (*model.OutboxEntry, error) {
	now := p.now()
	if variables == nil {
		variables = map[string]string{}
	}
	entry := model.OutboxEntry{
		EventType:   eventType,
		OrderID:     orderID,
		Recipient:   recipient,
		TemplateKey: templateKey,
		Variables:   variables,
		DedupeKey:   model.DedupeKey(orderID, eventType, recipient, now, p.window),
		Priority:    priority,
		ScheduledAt: now,
	}
	return p.outbox.Enqueue(ctx, entry)
}

// Observer returns the state machine hook that schedules customer
// notifications on qualifying transitions. Enqueue failures are logged, never
// propagated into the transition.
func (p *NotificationPlanner) Observer() TransitionObserver {
	return func(ctx context.Context, order *model.Order, from model.OrderStatus) {
		rule, ok := notifiable[order.Status]
		if !ok || order.CustomerEmail == "" {
			return
		}
		variables := map[string]string{
			"order_number": order.Number,
			"status":       string(order.Status),
			"total_amount": fmt.Sprintf("%.2f", order.TotalAmount),
		}
		if _, err := p.Enqueue(ctx, rule.event, order.ID, order.CustomerEmail, string(rule.event), variables, rule.priority); err != nil {
			p.logger.Error("notification enqueue failed",
				slog.Int64("order_id", order.ID),
				slog.String("event", string(rule.event)),
				slog.String("error", err.Error()))
		}
	}
}

// DeadLetters lists archived notifications for triage.
func (p *NotificationPlanner) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	return p.outbox.ListDeadLetters(ctx, limit)
}
