package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/avoray/ordersync/internal/adapter/consent"
	"github.com/avoray/ordersync/internal/adapter/sender"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
	"github.com/avoray/ordersync/internal/usecase"
)

// Pinger reports storage liveness.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// GatewayEvent is a parsed payment gateway report.
type GatewayEvent struct {
	ProviderReference string
	Status            model.TransactionStatus
	Amount            float64
	OrderID           *int64
	OrderNumber       string
}

// GatewayResult is the durable response returned (and replayed) for a gateway
// event.
type GatewayResult struct {
	Outcome       string `json:"outcome"`
	OrderID       *int64 `json:"order_id,omitempty"`
	OrderStatus   string `json:"order_status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// Facade stitches the use cases together behind one application surface used
// by the HTTP handlers and the background workers.
type Facade struct {
	machine *usecase.StateMachine
	engine  *usecase.ReconciliationEngine
	planner *usecase.NotificationPlanner
	locks   *usecase.LockManager
	idem    *usecase.IdempotencyCache

	orders  repository.OrderRepository
	outbox  repository.OutboxRepository
	consent consent.Checker
	sender  sender.Sender
	pinger  Pinger
	logger  *slog.Logger
}

// NewFacade constructs the application facade.
func NewFacade(
	machine *usecase.StateMachine,
	engine *usecase.ReconciliationEngine,
	planner *usecase.NotificationPlanner,
	locks *usecase.LockManager,
	idem *usecase.IdempotencyCache,
	orders repository.OrderRepository,
	outbox repository.OutboxRepository,
	checker consent.Checker,
	snd sender.Sender,
	pinger Pinger,
	logger *slog.Logger,
) *Facade {
	return &Facade{
		machine: machine,
		engine:  engine,
		planner: planner,
		locks:   locks,
		idem:    idem,
		orders:  orders,
		outbox:  outbox,
		consent: checker,
		sender:  snd,
		pinger:  pinger,
		logger:  logger,
	}
}

// CreateOrder registers a new order in its initial state.
func (f *Facade) CreateOrder(ctx context.Context, order model.Order) (*model.Order, error) {
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = model.PaymentStatusPending
	}
	if order.Type == "" {
		order.Type = model.OrderTypeDelivery
	}
	return f.orders.Create(ctx, order)
}

// GetOrder returns the order by id.
func (f *Facade) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return f.orders.GetByID(ctx, id)
}

// Transition applies an admin-requested status change.
func (f *Facade) Transition(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error) {
	return f.machine.Transition(ctx, orderID, target, actorID)
}

// Assign sets the delivery agent for the order.
func (f *Facade) Assign(ctx context.Context, orderID, agentID, actorID int64) (*model.Order, error) {
	return f.machine.Assign(ctx, orderID, agentID, actorID)
}

// AuditTrail returns recorded transitions for the order.
func (f *Facade) AuditTrail(ctx context.Context, orderID int64) ([]model.AuditRecord, error) {
	return f.machine.AuditTrail(ctx, orderID)
}

// DeadLetters lists archived notifications for triage.
func (f *Facade) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	return f.planner.DeadLetters(ctx, limit)
}

// HandleGatewayEvent runs reconciliation for a gateway report under the
// idempotency cache. The returned payload is stable across replays of the same
// key.
func (f *Facade) HandleGatewayEvent(ctx context.Context, idempotencyKey, fingerprint string, event GatewayEvent) ([]byte, bool, error) {
	return f.idem.Execute(ctx, idempotencyKey, fingerprint, func(ctx context.Context) ([]byte, error) {
		meta := model.ReferenceMetadata{OrderID: event.OrderID, OrderNumber: event.OrderNumber}
		result, err := f.engine.Reconcile(ctx, event.ProviderReference, event.Status, event.Amount, meta)
		if err != nil {
			return nil, err
		}

		f.alertOnAnomaly(ctx, event, result)

		out := GatewayResult{Outcome: string(result.Outcome)}
		if result.Order != nil {
			out.OrderID = &result.Order.ID
			out.OrderStatus = string(result.Order.Status)
			out.PaymentStatus = string(result.Order.PaymentStatus)
		}
		return json.Marshal(out)
	})
}

// alertOnAnomaly schedules an operator notification for reports that need a
// human decision. Failures are logged, the gateway still gets its ack.
func (f *Facade) alertOnAnomaly(ctx context.Context, event GatewayEvent, result *usecase.ReconciliationResult) {
	var (
		eventType model.EventType
		orderID   int64
	)
	switch result.Outcome {
	case usecase.OutcomeAmountMismatch:
		eventType = model.EventPaymentMismatch
		orderID = result.Order.ID
	case usecase.OutcomeOrphaned:
		eventType = model.EventPaymentOrphaned
	default:
		return
	}

	variables := map[string]string{
		"provider_reference": event.ProviderReference,
		"amount":             strconv.FormatFloat(event.Amount, 'f', 2, 64),
	}
	if _, err := f.planner.Enqueue(ctx, eventType, orderID, usecase.AdminRecipient, string(eventType), variables, model.PriorityHigh); err != nil {
		f.logger.Error("operator alert enqueue failed",
			slog.String("event", string(eventType)),
			slog.String("reference", event.ProviderReference),
			slog.String("error", err.Error()))
	}
}

// ReplayUnsettled heals successful transactions that never settled an order.
func (f *Facade) ReplayUnsettled(ctx context.Context, limit int) (int, error) {
	return f.engine.ReconcileBatch(ctx, limit)
}

// RequeueStuckNotifications reopens outbox claims abandoned by a crashed or
// interrupted worker so they retry instead of staying wedged.
func (f *Facade) RequeueStuckNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	return f.outbox.RequeueStuck(ctx, time.Now().Add(-olderThan))
}

// PurgeIdempotency garbage-collects expired replay records.
func (f *Facade) PurgeIdempotency(ctx context.Context) (int64, error) {
	return f.idem.PurgeExpired(ctx)
}

// ReapLocks releases locks whose TTL lapsed.
func (f *Facade) ReapLocks(ctx context.Context) (int64, error) {
	return f.locks.ReapExpired(ctx)
}

// ClaimDueNotifications pulls due outbox entries and marks them processing.
func (f *Facade) ClaimDueNotifications(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	return f.outbox.ClaimBatch(ctx, time.Now(), limit)
}

// MarkNotificationSent finalizes a delivered entry.
func (f *Facade) MarkNotificationSent(ctx context.Context, id int64) error {
	return f.outbox.MarkSent(ctx, id)
}

// MarkNotificationFailed terminally fails an entry without retry.
func (f *Facade) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	return f.outbox.MarkFailed(ctx, id, reason)
}

// RescheduleNotification requeues an entry for a later attempt.
func (f *Facade) RescheduleNotification(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error {
	return f.outbox.Reschedule(ctx, id, retryCount, at, reason)
}

// DeadLetterNotification archives an entry that exhausted its retries.
func (f *Facade) DeadLetterNotification(ctx context.Context, entry model.OutboxEntry, finalError string) error {
	_, err := f.outbox.MoveToDeadLetter(ctx, entry, finalError)
	return err
}

// IsSuppressed consults the consent service for the recipient.
func (f *Facade) IsSuppressed(ctx context.Context, recipient string) (bool, error) {
	return f.consent.IsSuppressed(ctx, recipient)
}

// SendNotification hands the entry to the configured delivery channel.
func (f *Facade) SendNotification(ctx context.Context, entry model.OutboxEntry) (*sender.Result, error) {
	return f.sender.Send(ctx, entry.Recipient, entry.TemplateKey, entry.Variables)
}

// Health pings the storage backend.
func (f *Facade) Health(ctx context.Context) error {
	return f.pinger.HealthCheck(ctx)
}
