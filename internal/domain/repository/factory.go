package repository

// Factory describes access to different domain repositories.
type Factory interface {
	Orders() OrderRepository
	Payments() PaymentTransactionRepository
	Locks() LockRepository
	Idempotency() IdempotencyRepository
	Outbox() OutboxRepository
	Audit() AuditRepository
}
