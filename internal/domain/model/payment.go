package model

import (
	"strings"
	"time"
)

// TransactionStatus describes gateway-reported settlement state.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// PaymentTransaction mirrors a gateway transaction record. A transaction is
// linked to at most one order and never relinked afterwards.
type PaymentTransaction struct {
	ID                int64
	ProviderReference string
	OrderID           *int64
	Amount            float64
	Status            TransactionStatus
	Metadata          ReferenceMetadata
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReferenceMetadata is the typed envelope of order hints a gateway payload may
// carry. It is validated at the boundary, never trusted as opaque structure.
type ReferenceMetadata struct {
	OrderID     *int64 `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
}

const (
	// CanonicalReferencePrefix marks gateway references issued by our checkout.
	CanonicalReferencePrefix = "pay_"
	// AliasReferencePrefix marks client-issued charge aliases for the same
	// payment. The rewrite to canonical form is a best-effort heuristic.
	AliasReferencePrefix = "chg_"
)

// NormalizeReference rewrites a client alias reference into canonical form.
// Returns the input unchanged and false when no rewrite applies.
func NormalizeReference(ref string) (string, bool) {
	if strings.HasPrefix(ref, AliasReferencePrefix) {
		return CanonicalReferencePrefix + strings.TrimPrefix(ref, AliasReferencePrefix), true
	}
	return ref, false
}
