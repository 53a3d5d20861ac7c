package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// State machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingAssignment = errors.New("order has no assigned agent")

	// Reconciliation.
	ErrAmountMismatch   = errors.New("payment amount mismatch")
	ErrOrphaned         = errors.New("transaction not resolvable to an order")
	ErrAlreadyProcessed = errors.New("payment already processed")

	// Lock manager.
	ErrLockBusy    = errors.New("order lock busy")
	ErrLockExpired = errors.New("order lock expired")

	// Idempotency cache. A replay hit is not a failure; in-flight duplicates
	// conflict instead of re-executing.
	ErrDuplicateSuppressed = errors.New("duplicate request suppressed")
	ErrInFlightConflict    = errors.New("request with same idempotency key in flight")

	// Outbox.
	ErrRateLimited         = errors.New("recipient rate limit exceeded")
	ErrRecipientSuppressed = errors.New("recipient on suppression list")
	ErrRetriesExhausted    = errors.New("delivery retries exhausted")
)
