package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
	testhelpers "github.com/avoray/ordersync/internal/test"
)

type reconcileFixture struct {
	orders   *testhelpers.OrderRepositoryStub
	payments *testhelpers.PaymentRepositoryStub
	audit    *testhelpers.AuditRepositoryStub
	engine   *ReconciliationEngine
}

func newReconcileFixture() *reconcileFixture {
	orders := testhelpers.NewOrderRepositoryStub()
	payments := testhelpers.NewPaymentRepositoryStub(orders)
	audit := &testhelpers.AuditRepositoryStub{}
	locks := NewLockManager(testhelpers.NewLockRepositoryStub(), 30*time.Second, 3, time.Millisecond, discardLogger())
	machine := NewStateMachine(orders, audit, locks, discardLogger())
	engine := NewReconciliationEngine(orders, payments, audit, machine, locks, discardLogger())
	return &reconcileFixture{orders: orders, payments: payments, audit: audit, engine: engine}
}

func strPtr(s string) *string { return &s }

func TestReconcileSuccessLinksAndConfirms(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      49.90,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 49.90, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	if result.Order.Status != model.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", result.Order.Status)
	}

	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != model.PaymentStatusPaid || stored.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", stored)
	}
	tx, err := f.payments.GetByProviderReference(context.Background(), "pay_abc")
	if err != nil || tx.OrderID == nil || *tx.OrderID != order.ID {
		t.Fatalf("expected linked transaction, got %+v (%v)", tx, err)
	}
}

func TestReconcileDuplicateWebhookAlreadyProcessed(t *testing.T) {
	f := newReconcileFixture()
	f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	if _, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{}); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if result.Outcome != OutcomeAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", result.Outcome)
	}
}

func TestReconcileAmountMismatchRaisesIncident(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      100,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 90, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeAmountMismatch {
		t.Fatalf("expected amount_mismatch, got %s", result.Outcome)
	}

	// The order is never mutated on a mismatch.
	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.Status != model.OrderStatusPending || stored.PaymentStatus != model.PaymentStatusPending {
		t.Fatalf("mismatch must not touch order: %+v", stored)
	}

	if len(f.audit.Incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(f.audit.Incidents))
	}
	inc := f.audit.Incidents[0]
	if inc.Kind != "amount_mismatch" || inc.Severity != model.IncidentSeverityHigh {
		t.Fatalf("unexpected incident %+v", inc)
	}
}

func TestReconcileAmountWithinEpsilon(t *testing.T) {
	f := newReconcileFixture()
	f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      100,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 100.009, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Fatalf("sub-epsilon difference must link, got %s", result.Outcome)
	}
}

func TestReconcileOrphanedTransaction(t *testing.T) {
	f := newReconcileFixture()

	result, err := f.engine.Reconcile(context.Background(), "pay_unknown", model.TransactionStatusSuccess, 25, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeOrphaned {
		t.Fatalf("expected orphaned, got %s", result.Outcome)
	}
	if result.Transaction == nil || result.Transaction.OrderID != nil {
		t.Fatalf("expected unlinked stored transaction, got %+v", result.Transaction)
	}
	if len(f.audit.Incidents) != 1 || f.audit.Incidents[0].Kind != "orphaned_transaction" {
		t.Fatalf("expected orphaned incident, got %+v", f.audit.Incidents)
	}
}

func TestReconcileAliasReferenceResolves(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "chg_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Fatalf("expected alias to resolve, got %s", result.Outcome)
	}
	if result.Order.ID != order.ID {
		t.Fatalf("alias resolved to wrong order %d", result.Order.ID)
	}
}

func TestReconcileMetadataOrderNumberResolves(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:        "ORD-77",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   10,
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_untracked", model.TransactionStatusSuccess, 10,
		model.ReferenceMetadata{OrderNumber: "ORD-77"})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked || result.Order.ID != order.ID {
		t.Fatalf("expected metadata fallback to link order %d, got %+v", order.ID, result)
	}
}

func TestReconcileFailureDoesNotRegressPaidOrder(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	if _, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{}); err != nil {
		t.Fatalf("success reconcile failed: %v", err)
	}
	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusFailed, 10, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("failure reconcile errored: %v", err)
	}
	if result.Outcome != OutcomeFailureRecorded {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}

	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("failure report regressed paid order: %s", stored.PaymentStatus)
	}
}

func TestReconcileDoesNotAdvanceLateOrders(t *testing.T) {
	f := newReconcileFixture()
	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPreparing,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}

	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.Status != model.OrderStatusPreparing {
		t.Fatalf("late order must keep its admin-driven status, got %s", stored.Status)
	}
	if stored.PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("expected paid payment status, got %s", stored.PaymentStatus)
	}
}

func TestReconcileBatchHealsOrphans(t *testing.T) {
	f := newReconcileFixture()

	// Payment arrives before the order exists.
	if _, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusSuccess, 10, model.ReferenceMetadata{}); err != nil {
		t.Fatalf("orphan reconcile failed: %v", err)
	}

	order := f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	healed, err := f.engine.ReconcileBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch reconcile failed: %v", err)
	}
	if healed != 1 {
		t.Fatalf("expected 1 healed transaction, got %d", healed)
	}

	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != model.PaymentStatusPaid || stored.Status != model.OrderStatusConfirmed {
		t.Fatalf("expected healed order, got %+v", stored)
	}
}

func TestReconcileBatchKeepsOneIncidentPerReference(t *testing.T) {
	f := newReconcileFixture()

	// A transaction that never finds its order is rescanned on every pass.
	if _, err := f.engine.Reconcile(context.Background(), "pay_lost", model.TransactionStatusSuccess, 25, model.ReferenceMetadata{}); err != nil {
		t.Fatalf("orphan reconcile failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		healed, err := f.engine.ReconcileBatch(context.Background(), 10)
		if err != nil {
			t.Fatalf("batch reconcile failed: %v", err)
		}
		if healed != 0 {
			t.Fatalf("nothing to heal, got %d", healed)
		}
	}

	if len(f.audit.Incidents) != 1 {
		t.Fatalf("expected one open incident, got %d", len(f.audit.Incidents))
	}
	if f.audit.Incidents[0].Kind != "orphaned_transaction" {
		t.Fatalf("unexpected incident %+v", f.audit.Incidents[0])
	}
}

func TestReconcilePendingRecorded(t *testing.T) {
	f := newReconcileFixture()
	f.orders.Seed(model.Order{
		Number:           "ORD-1",
		Status:           model.OrderStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmount:      10,
		PaymentReference: strPtr("pay_abc"),
	})

	result, err := f.engine.Reconcile(context.Background(), "pay_abc", model.TransactionStatusPending, 10, model.ReferenceMetadata{})
	if err != nil {
		t.Fatalf("reconcile returned error: %v", err)
	}
	if result.Outcome != OutcomePendingRecorded {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
}
