package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// AmountEpsilon is the absolute tolerance when comparing a reported amount to
// the order total.
const AmountEpsilon = 0.01

// ReconciliationOutcome classifies the result of processing a gateway report.
type ReconciliationOutcome string

const (
	OutcomeLinked           ReconciliationOutcome = "linked"
	OutcomeAlreadyProcessed ReconciliationOutcome = "already_processed"
	OutcomeOrphaned         ReconciliationOutcome = "orphaned"
	OutcomeAmountMismatch   ReconciliationOutcome = "amount_mismatch"
	OutcomeFailureRecorded  ReconciliationOutcome = "failure_recorded"
	OutcomePendingRecorded  ReconciliationOutcome = "pending_recorded"
)

// ReconciliationResult reports what the engine did with a gateway event.
type ReconciliationResult struct {
	Outcome     ReconciliationOutcome
	Order       *model.Order
	Transaction *model.PaymentTransaction
}

// ReconciliationEngine maps gateway references to orders and keeps order and
// transaction rows mutually consistent.
type ReconciliationEngine struct {
	orders   repository.OrderRepository
	payments repository.PaymentTransactionRepository
	audit    repository.AuditRepository
	machine  *StateMachine
	locks    *LockManager
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciliationEngine constructs ReconciliationEngine.
func NewReconciliationEngine(orders repository.OrderRepository, payments repository.PaymentTransactionRepository, audit repository.AuditRepository, machine *StateMachine, locks *LockManager, logger *slog.Logger) *ReconciliationEngine {
	return &ReconciliationEngine{
		orders:   orders,
		payments: payments,
		audit:    audit,
		machine:  machine,
		locks:    locks,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile processes a gateway report for providerReference. The transaction
// is always durably recorded; orphaned and mismatched reports never mutate
// order state and are surfaced for human review instead.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, providerReference string, reported model.TransactionStatus, amount float64, meta model.ReferenceMetadata) (*ReconciliationResult, error) {
	order, err := e.resolveOrder(ctx, providerReference, meta)
	if err != nil {
		return nil, err
	}

	if order == nil {
		tx, err := e.payments.UpsertUnlinked(ctx, providerReference, reported, amount, meta)
		if err != nil {
			return nil, err
		}
		e.raiseIncident(ctx, "orphaned_transaction", model.IncidentSeverityMedium, nil, providerReference,
			fmt.Sprintf("no order resolvable for reference %s (amount %.2f)", providerReference, amount))
		return &ReconciliationResult{Outcome: OutcomeOrphaned, Transaction: tx}, nil
	}

	var result *ReconciliationResult
	err = e.locks.WithLock(ctx, order.ID, func(ctx context.Context) error {
		res, err := e.reconcileLocked(ctx, order.ID, providerReference, reported, amount, meta)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *ReconciliationEngine) reconcileLocked(ctx context.Context, orderID int64, providerReference string, reported model.TransactionStatus, amount float64, meta model.ReferenceMetadata) (*ReconciliationResult, error) {
	// Re-read under the lock; the resolution pass ran outside it.
	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	existing, err := e.payments.GetByProviderReference(ctx, providerReference)
	if err != nil && !errors.Is(err, domainErrors.ErrNotFound) {
		return nil, err
	}

	switch reported {
	case model.TransactionStatusSuccess:
		if existing != nil && existing.OrderID != nil && existing.Status == model.TransactionStatusSuccess &&
			order.PaymentStatus == model.PaymentStatusPaid {
			return &ReconciliationResult{Outcome: OutcomeAlreadyProcessed, Order: order, Transaction: existing}, nil
		}

		if math.Abs(amount-order.TotalAmount) > AmountEpsilon {
			tx, err := e.payments.UpsertUnlinked(ctx, providerReference, reported, amount, meta)
			if err != nil {
				return nil, err
			}
			e.raiseIncident(ctx, "amount_mismatch", model.IncidentSeverityHigh, &order.ID, providerReference,
				fmt.Sprintf("reported %.2f, order total %.2f", amount, order.TotalAmount))
			return &ReconciliationResult{Outcome: OutcomeAmountMismatch, Order: order, Transaction: tx}, nil
		}

		tx, err := e.payments.LinkSuccess(ctx, providerReference, order.ID, amount, meta, e.now())
		if err != nil {
			return nil, err
		}

		// Only early orders advance; later stages were driven by admins and
		// must not be touched.
		updated := order
		if order.Status.IsEarly() {
			updated, err = e.machine.Apply(ctx, order.ID, model.OrderStatusConfirmed, SystemActorID)
			if err != nil {
				return nil, err
			}
		}
		return &ReconciliationResult{Outcome: OutcomeLinked, Order: updated, Transaction: tx}, nil

	case model.TransactionStatusFailed:
		tx, err := e.payments.LinkFailure(ctx, providerReference, order.ID, amount, meta)
		if err != nil {
			return nil, err
		}
		return &ReconciliationResult{Outcome: OutcomeFailureRecorded, Order: order, Transaction: tx}, nil

	default:
		tx, err := e.payments.UpsertUnlinked(ctx, providerReference, reported, amount, meta)
		if err != nil {
			return nil, err
		}
		return &ReconciliationResult{Outcome: OutcomePendingRecorded, Order: order, Transaction: tx}, nil
	}
}

// resolveOrder walks the resolution chain, stopping at the first match:
// metadata order id, exact reference, normalized alias reference, metadata
// order number. A nil order with nil error means orphaned.
func (e *ReconciliationEngine) resolveOrder(ctx context.Context, providerReference string, meta model.ReferenceMetadata) (*model.Order, error) {
	if meta.OrderID != nil && *meta.OrderID > 0 {
		order, err := e.orders.GetByID(ctx, *meta.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domainErrors.ErrNotFound) {
			return nil, err
		}
	}

	order, err := e.orders.GetByPaymentReference(ctx, providerReference)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, domainErrors.ErrNotFound) {
		return nil, err
	}

	if normalized, ok := model.NormalizeReference(providerReference); ok {
		order, err = e.orders.GetByPaymentReference(ctx, normalized)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domainErrors.ErrNotFound) {
			return nil, err
		}
	}

	if meta.OrderNumber != "" {
		order, err = e.orders.GetByNumber(ctx, meta.OrderNumber)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domainErrors.ErrNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// ReconcileBatch replays reconciliation for successful transactions whose
// order is missing or still unpaid. Heals drift from delivery-order races.
func (e *ReconciliationEngine) ReconcileBatch(ctx context.Context, limit int) (int, error) {
	pending, err := e.payments.ListSuccessfulUnsettled(ctx, limit)
	if err != nil {
		return 0, err
	}

	healed := 0
	for _, tx := range pending {
		result, err := e.Reconcile(ctx, tx.ProviderReference, model.TransactionStatusSuccess, tx.Amount, tx.Metadata)
		if err != nil {
			if errors.Is(err, domainErrors.ErrLockBusy) {
				continue
			}
			e.logger.Error("batch reconcile failed",
				slog.String("reference", tx.ProviderReference),
				slog.String("error", err.Error()))
			continue
		}
		if result.Outcome == OutcomeLinked {
			healed++
		}
	}
	return healed, nil
}

func (e *ReconciliationEngine) raiseIncident(ctx context.Context, kind string, severity model.IncidentSeverity, orderID *int64, reference, details string) {
	if _, err := e.audit.RecordIncident(ctx, model.Incident{
		Kind:              kind,
		Severity:          severity,
		OrderID:           orderID,
		ProviderReference: reference,
		Details:           details,
	}); err != nil {
		e.logger.Error("incident record failed",
			slog.String("kind", kind),
			slog.String("reference", reference),
			slog.String("error", err.Error()))
	}
}
