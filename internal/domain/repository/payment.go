package repository

import (
	"context"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
)

// PaymentTransactionRepository describes persistence of gateway transactions.
type PaymentTransactionRepository interface {
	GetByProviderReference(ctx context.Context, reference string) (*model.PaymentTransaction, error)
	// UpsertUnlinked records a transaction that resolved to no order. Keyed by
	// provider reference, insert-or-update, never duplicated.
	UpsertUnlinked(ctx context.Context, reference string, status model.TransactionStatus, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error)
	// LinkSuccess atomically upserts the successful transaction, links it to
	// the order, and marks the order paid (paid_at set only if unset).
	LinkSuccess(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata, paidAt time.Time) (*model.PaymentTransaction, error)
	// LinkFailure records a failed transaction against a resolved order and
	// flags the order's payment as failed unless it is already paid.
	LinkFailure(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error)
	// ListSuccessfulUnsettled returns successful transactions whose order is
	// missing or not yet marked paid, oldest first.
	ListSuccessfulUnsettled(ctx context.Context, limit int) ([]model.PaymentTransaction, error)
}
