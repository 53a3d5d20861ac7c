package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/domain/repository"
)

// pgxPool abstracts pgxpool.Pool so storage can be exercised with pgxmock.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
}

type orderRepository struct {
	storage *Storage
}

type paymentRepository struct {
	storage *Storage
}

type lockRepository struct {
	storage *Storage
}

type idempotencyRepository struct {
	storage *Storage
}

type outboxRepository struct {
	storage *Storage
}

type auditRepository struct {
	storage *Storage
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Factory methods for domain repositories.
func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Payments() repository.PaymentTransactionRepository {
	return &paymentRepository{storage: s}
}

func (s *Storage) Locks() repository.LockRepository {
	return &lockRepository{storage: s}
}

func (s *Storage) Idempotency() repository.IdempotencyRepository {
	return &idempotencyRepository{storage: s}
}

func (s *Storage) Outbox() repository.OutboxRepository {
	return &outboxRepository{storage: s}
}

func (s *Storage) Audit() repository.AuditRepository {
	return &auditRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
            id BIGSERIAL PRIMARY KEY,
            number TEXT UNIQUE NOT NULL,
            customer_email TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'pending',
            total_amount DOUBLE PRECISION NOT NULL,
            payment_reference TEXT UNIQUE,
            assigned_agent_id BIGINT,
            order_type TEXT NOT NULL DEFAULT 'delivery',
            paid_at TIMESTAMPTZ,
            verified_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
            id BIGSERIAL PRIMARY KEY,
            provider_reference TEXT UNIQUE NOT NULL,
            order_id BIGINT REFERENCES orders(id),
            amount DOUBLE PRECISION NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            metadata JSONB NOT NULL DEFAULT '{}',
            paid_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS order_locks (
            id BIGSERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL,
            lock_key TEXT NOT NULL,
            holder_id TEXT NOT NULL,
            acquired_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            expires_at TIMESTAMPTZ NOT NULL,
            released_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            key TEXT PRIMARY KEY,
            request_fingerprint TEXT NOT NULL,
            response_payload BYTEA,
            status TEXT NOT NULL DEFAULT 'processing',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ,
            expires_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS outbox_entries (
            id BIGSERIAL PRIMARY KEY,
            event_type TEXT NOT NULL,
            order_id BIGINT NOT NULL,
            recipient TEXT NOT NULL,
            template_key TEXT NOT NULL,
            variables JSONB NOT NULL DEFAULT '{}',
            dedupe_key TEXT UNIQUE NOT NULL,
            status TEXT NOT NULL DEFAULT 'queued',
            priority SMALLINT NOT NULL DEFAULT 1,
            retry_count INT NOT NULL DEFAULT 0,
            scheduled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            error_message TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
            id BIGSERIAL PRIMARY KEY,
            original_entry_id BIGINT NOT NULL,
            order_id BIGINT NOT NULL,
            event_type TEXT NOT NULL,
            recipient TEXT NOT NULL,
            final_error TEXT NOT NULL,
            total_attempts INT NOT NULL,
            moved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS order_audit (
            id BIGSERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL,
            actor_id BIGINT NOT NULL,
            from_status TEXT NOT NULL,
            to_status TEXT NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS incidents (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL,
            severity TEXT NOT NULL,
            order_id BIGINT,
            provider_reference TEXT NOT NULL DEFAULT '',
            details TEXT NOT NULL DEFAULT '',
            recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_order_locks_active ON order_locks(order_id) WHERE released_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_incidents_kind_ref ON incidents(kind, provider_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_entries(status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_order ON order_audit(order_id, recorded_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

const orderColumns = `id, number, customer_email, status, payment_status, total_amount, payment_reference, assigned_agent_id, order_type, paid_at, verified_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerEmail, &o.Status, &o.PaymentStatus, &o.TotalAmount, &o.PaymentReference,
		&o.AssignedAgentID, &o.Type, &o.PaidAt, &o.VerifiedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// --- OrderRepository implementation ---

func (r *orderRepository) Create(ctx context.Context, order model.Order) (*model.Order, error) {
	const query = `INSERT INTO orders (number, customer_email, status, payment_status, total_amount, payment_reference, assigned_agent_id, order_type)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                   RETURNING ` + orderColumns
	created, err := scanOrder(r.storage.pool.QueryRow(ctx, query,
		order.Number, order.CustomerEmail, order.Status, order.PaymentStatus, order.TotalAmount,
		order.PaymentReference, order.AssignedAgentID, order.Type))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("order %s: %w", order.Number, domainErrors.ErrAlreadyProcessed)
		}
		return nil, err
	}
	return created, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	return scanOrder(r.storage.pool.QueryRow(ctx, query, id))
}

func (r *orderRepository) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE number=$1`
	return scanOrder(r.storage.pool.QueryRow(ctx, query, number))
}

func (r *orderRepository) GetByPaymentReference(ctx context.Context, reference string) (*model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference=$1`
	return scanOrder(r.storage.pool.QueryRow(ctx, query, reference))
}

func (r *orderRepository) UpdateStatusCAS(ctx context.Context, orderID int64, expected, next model.OrderStatus) (*model.Order, error) {
	const query = `UPDATE orders SET status=$3, updated_at=NOW()
                   WHERE id=$1 AND status=$2
                   RETURNING ` + orderColumns
	return scanOrder(r.storage.pool.QueryRow(ctx, query, orderID, expected, next))
}

func (r *orderRepository) AssignAgent(ctx context.Context, orderID, agentID int64) (*model.Order, error) {
	const query = `UPDATE orders SET assigned_agent_id=$2, updated_at=NOW()
                   WHERE id=$1
                   RETURNING ` + orderColumns
	return scanOrder(r.storage.pool.QueryRow(ctx, query, orderID, agentID))
}

// --- PaymentTransactionRepository implementation ---

const txColumns = `id, provider_reference, order_id, amount, status, metadata, paid_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.PaymentTransaction, error) {
	var t model.PaymentTransaction
	err := row.Scan(&t.ID, &t.ProviderReference, &t.OrderID, &t.Amount, &t.Status, &t.Metadata,
		&t.PaidAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *paymentRepository) GetByProviderReference(ctx context.Context, reference string) (*model.PaymentTransaction, error) {
	const query = `SELECT ` + txColumns + ` FROM payment_transactions WHERE provider_reference=$1`
	return scanTransaction(r.storage.pool.QueryRow(ctx, query, reference))
}

func (r *paymentRepository) UpsertUnlinked(ctx context.Context, reference string, status model.TransactionStatus, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error) {
	const query = `INSERT INTO payment_transactions (provider_reference, amount, status, metadata)
                   VALUES ($1, $2, $3, $4)
                   ON CONFLICT (provider_reference) DO UPDATE
                   SET amount=EXCLUDED.amount, status=EXCLUDED.status, metadata=EXCLUDED.metadata, updated_at=NOW()
                   RETURNING ` + txColumns
	return scanTransaction(r.storage.pool.QueryRow(ctx, query, reference, amount, status, meta))
}

func (r *paymentRepository) LinkSuccess(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata, paidAt time.Time) (*model.PaymentTransaction, error) {
	var result *model.PaymentTransaction
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		// COALESCE keeps the first linked order: a transaction is never relinked.
		const upsert = `INSERT INTO payment_transactions (provider_reference, order_id, amount, status, metadata, paid_at)
                        VALUES ($1, $2, $3, 'success', $4, $5)
                        ON CONFLICT (provider_reference) DO UPDATE
                        SET order_id=COALESCE(payment_transactions.order_id, EXCLUDED.order_id),
                            amount=EXCLUDED.amount,
                            status='success',
                            metadata=EXCLUDED.metadata,
                            paid_at=COALESCE(payment_transactions.paid_at, EXCLUDED.paid_at),
                            updated_at=NOW()
                        RETURNING ` + txColumns
		linked, err := scanTransaction(tx.QueryRow(ctx, upsert, reference, orderID, amount, meta, paidAt))
		if err != nil {
			return err
		}

		const markPaid = `UPDATE orders SET payment_status='paid', paid_at=COALESCE(paid_at, $2), updated_at=NOW() WHERE id=$1`
		if _, err := tx.Exec(ctx, markPaid, orderID, paidAt); err != nil {
			return err
		}

		result = linked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *paymentRepository) LinkFailure(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error) {
	var result *model.PaymentTransaction
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const upsert = `INSERT INTO payment_transactions (provider_reference, order_id, amount, status, metadata)
                        VALUES ($1, $2, $3, 'failed', $4)
                        ON CONFLICT (provider_reference) DO UPDATE
                        SET order_id=COALESCE(payment_transactions.order_id, EXCLUDED.order_id),
                            amount=EXCLUDED.amount,
                            status='failed',
                            metadata=EXCLUDED.metadata,
                            updated_at=NOW()
                        RETURNING ` + txColumns
		linked, err := scanTransaction(tx.QueryRow(ctx, upsert, reference, orderID, amount, meta))
		if err != nil {
			return err
		}

		// A failure report never regresses an already paid order.
		const markFailed = `UPDATE orders SET payment_status='failed', updated_at=NOW()
                            WHERE id=$1 AND payment_status <> 'paid'`
		if _, err := tx.Exec(ctx, markFailed, orderID); err != nil {
			return err
		}

		result = linked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *paymentRepository) ListSuccessfulUnsettled(ctx context.Context, limit int) ([]model.PaymentTransaction, error) {
	const query = `SELECT t.id, t.provider_reference, t.order_id, t.amount, t.status, t.metadata, t.paid_at, t.created_at, t.updated_at
                   FROM payment_transactions t
                   LEFT JOIN orders o ON o.id = t.order_id
                   WHERE t.status='success' AND (t.order_id IS NULL OR o.payment_status <> 'paid')
                   ORDER BY t.created_at
                   LIMIT $1`
	rows, err := r.storage.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.PaymentTransaction
	for rows.Next() {
		var t model.PaymentTransaction
		if err := rows.Scan(&t.ID, &t.ProviderReference, &t.OrderID, &t.Amount, &t.Status, &t.Metadata, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- LockRepository implementation ---

func (r *lockRepository) TryAcquire(ctx context.Context, orderID int64, lockKey, holderID string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const reap = `UPDATE order_locks SET released_at=NOW()
                      WHERE order_id=$1 AND released_at IS NULL AND expires_at <= NOW()`
		if _, err := tx.Exec(ctx, reap, orderID); err != nil {
			return err
		}

		const insert = `INSERT INTO order_locks (order_id, lock_key, holder_id, expires_at)
                        VALUES ($1, $2, $3, NOW() + $4)
                        ON CONFLICT (order_id) WHERE released_at IS NULL DO NOTHING`
		tag, err := tx.Exec(ctx, insert, orderID, lockKey, holderID, ttl)
		if err != nil {
			return err
		}
		acquired = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (r *lockRepository) Release(ctx context.Context, orderID int64, holderID string) (bool, error) {
	const query = `UPDATE order_locks SET released_at=NOW()
                   WHERE order_id=$1 AND holder_id=$2 AND released_at IS NULL AND expires_at > NOW()`
	tag, err := r.storage.pool.Exec(ctx, query, orderID, holderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *lockRepository) Get(ctx context.Context, orderID int64) (*model.OrderLock, error) {
	const query = `SELECT id, order_id, lock_key, holder_id, acquired_at, expires_at, released_at
                   FROM order_locks WHERE order_id=$1 AND released_at IS NULL`
	var l model.OrderLock
	err := r.storage.pool.QueryRow(ctx, query, orderID).Scan(&l.ID, &l.OrderID, &l.LockKey, &l.HolderID, &l.AcquiredAt, &l.ExpiresAt, &l.ReleasedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *lockRepository) ReapExpired(ctx context.Context) (int64, error) {
	const query = `UPDATE order_locks SET released_at=NOW()
                   WHERE released_at IS NULL AND expires_at <= NOW()`
	tag, err := r.storage.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- IdempotencyRepository implementation ---

func (r *idempotencyRepository) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *model.IdempotencyRecord, error) {
	const insert = `INSERT INTO idempotency_keys (key, request_fingerprint, status, expires_at)
                    VALUES ($1, $2, 'processing', NOW() + $3)
                    ON CONFLICT (key) DO NOTHING`
	tag, err := r.storage.pool.Exec(ctx, insert, key, fingerprint, ttl)
	if err != nil {
		return false, nil, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	const query = `SELECT key, request_fingerprint, response_payload, status, created_at, completed_at, expires_at
                   FROM idempotency_keys WHERE key=$1`
	var rec model.IdempotencyRecord
	err = r.storage.pool.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.RequestFingerprint, &rec.ResponsePayload, &rec.Status, &rec.CreatedAt, &rec.CompletedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, domainErrors.ErrNotFound
		}
		return false, nil, err
	}
	return false, &rec, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, status model.IdempotencyStatus, payload []byte) error {
	const query = `UPDATE idempotency_keys SET status=$2, response_payload=$3, completed_at=NOW() WHERE key=$1`
	_, err := r.storage.pool.Exec(ctx, query, key, status, payload)
	return err
}

func (r *idempotencyRepository) PurgeExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`
	tag, err := r.storage.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- OutboxRepository implementation ---

const outboxColumns = `id, event_type, order_id, recipient, template_key, variables, dedupe_key, status, priority, retry_count, scheduled_at, error_message, created_at, updated_at`

func rankToPriority(rank int16) model.Priority {
	switch rank {
	case 2:
		return model.PriorityHigh
	case 1:
		return model.PriorityNormal
	default:
		return model.PriorityLow
	}
}

func scanOutboxEntry(row pgx.Row) (*model.OutboxEntry, error) {
	var e model.OutboxEntry
	var rank int16
	err := row.Scan(&e.ID, &e.EventType, &e.OrderID, &e.Recipient, &e.TemplateKey, &e.Variables,
		&e.DedupeKey, &e.Status, &rank, &e.RetryCount, &e.ScheduledAt, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	e.Priority = rankToPriority(rank)
	return &e, nil
}

func (r *outboxRepository) Enqueue(ctx context.Context, entry model.OutboxEntry) (*model.OutboxEntry, error) {
	// Conflict on dedupe_key means the logical event is already queued inside
	// the coalescing window: merge variables and reopen failed rows.
	const query = `INSERT INTO outbox_entries (event_type, order_id, recipient, template_key, variables, dedupe_key, priority, scheduled_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                   ON CONFLICT (dedupe_key) DO UPDATE
                   SET variables = outbox_entries.variables || EXCLUDED.variables,
                       status = CASE WHEN outbox_entries.status = 'failed' THEN 'queued' ELSE outbox_entries.status END,
                       retry_count = CASE WHEN outbox_entries.status = 'failed' THEN 0 ELSE outbox_entries.retry_count END,
                       scheduled_at = CASE WHEN outbox_entries.status = 'failed' THEN EXCLUDED.scheduled_at ELSE outbox_entries.scheduled_at END,
                       updated_at = NOW()
                   RETURNING ` + outboxColumns
	return scanOutboxEntry(r.storage.pool.QueryRow(ctx, query,
		entry.EventType, entry.OrderID, entry.Recipient, entry.TemplateKey, entry.Variables,
		entry.DedupeKey, int16(entry.Priority.Rank()), entry.ScheduledAt))
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	const selectQuery = `SELECT ` + outboxColumns + `
                         FROM outbox_entries
                         WHERE status='queued' AND scheduled_at <= $1
                         ORDER BY priority DESC, scheduled_at
                         LIMIT $2
                         FOR UPDATE SKIP LOCKED`

	var entries []model.OutboxEntry
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectQuery, now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e model.OutboxEntry
			var rank int16
			if err := rows.Scan(&e.ID, &e.EventType, &e.OrderID, &e.Recipient, &e.TemplateKey, &e.Variables,
				&e.DedupeKey, &e.Status, &rank, &e.RetryCount, &e.ScheduledAt, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return err
			}
			e.Priority = rankToPriority(rank)
			e.Status = model.OutboxStatusProcessing
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, e := range entries {
			if _, err := tx.Exec(ctx, `UPDATE outbox_entries SET status='processing', updated_at=NOW() WHERE id=$1`, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	const query = `UPDATE outbox_entries SET status='sent', error_message=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.storage.pool.Exec(ctx, query, id)
	return err
}

func (r *outboxRepository) RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	// A claim abandoned mid-flight keeps status='processing' forever; the
	// updated_at stamp from ClaimBatch dates the claim.
	const query = `UPDATE outbox_entries SET status='queued', updated_at=NOW()
                   WHERE status='processing' AND updated_at <= $1`
	tag, err := r.storage.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	const query = `UPDATE outbox_entries SET status='failed', error_message=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.storage.pool.Exec(ctx, query, id, reason)
	return err
}

func (r *outboxRepository) Reschedule(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error {
	const query = `UPDATE outbox_entries SET status='queued', retry_count=$2, scheduled_at=$3, error_message=$4, updated_at=NOW() WHERE id=$1`
	_, err := r.storage.pool.Exec(ctx, query, id, retryCount, at, reason)
	return err
}

func (r *outboxRepository) MoveToDeadLetter(ctx context.Context, entry model.OutboxEntry, finalError string) (*model.DeadLetterEntry, error) {
	var dead model.DeadLetterEntry
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const insert = `INSERT INTO dead_letters (original_entry_id, order_id, event_type, recipient, final_error, total_attempts)
                        VALUES ($1, $2, $3, $4, $5, $6)
                        RETURNING id, moved_at`
		if err := tx.QueryRow(ctx, insert, entry.ID, entry.OrderID, entry.EventType, entry.Recipient, finalError, entry.RetryCount).Scan(&dead.ID, &dead.MovedAt); err != nil {
			return err
		}

		// Remove the live row so the dedupe key is free for future windows.
		if _, err := tx.Exec(ctx, `DELETE FROM outbox_entries WHERE id=$1`, entry.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dead.OriginalEntryID = entry.ID
	dead.OrderID = entry.OrderID
	dead.EventType = entry.EventType
	dead.Recipient = entry.Recipient
	dead.FinalError = finalError
	dead.TotalAttempts = entry.RetryCount
	return &dead, nil
}

func (r *outboxRepository) ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	const query = `SELECT id, original_entry_id, order_id, event_type, recipient, final_error, total_attempts, moved_at
                   FROM dead_letters ORDER BY moved_at DESC LIMIT $1`
	rows, err := r.storage.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.DeadLetterEntry
	for rows.Next() {
		var d model.DeadLetterEntry
		if err := rows.Scan(&d.ID, &d.OriginalEntryID, &d.OrderID, &d.EventType, &d.Recipient, &d.FinalError, &d.TotalAttempts, &d.MovedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- AuditRepository implementation ---

func (r *auditRepository) AppendTransition(ctx context.Context, rec model.AuditRecord) error {
	const query = `INSERT INTO order_audit (order_id, actor_id, from_status, to_status) VALUES ($1, $2, $3, $4)`
	_, err := r.storage.pool.Exec(ctx, query, rec.OrderID, rec.ActorID, rec.FromStatus, rec.ToStatus)
	return err
}

func (r *auditRepository) ListTransitions(ctx context.Context, orderID int64) ([]model.AuditRecord, error) {
	const query = `SELECT id, order_id, actor_id, from_status, to_status, recorded_at
                   FROM order_audit WHERE order_id=$1 ORDER BY recorded_at`
	rows, err := r.storage.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.AuditRecord
	for rows.Next() {
		var a model.AuditRecord
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ActorID, &a.FromStatus, &a.ToStatus, &a.RecordedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *auditRepository) RecordIncident(ctx context.Context, inc model.Incident) (*model.Incident, error) {
	// One open incident per (kind, reference); replaying the same anomaly
	// refreshes the row instead of paging operators again.
	const query = `INSERT INTO incidents (kind, severity, order_id, provider_reference, details)
                   VALUES ($1, $2, $3, $4, $5)
                   ON CONFLICT (kind, provider_reference) DO UPDATE
                   SET severity=EXCLUDED.severity,
                       order_id=COALESCE(incidents.order_id, EXCLUDED.order_id),
                       details=EXCLUDED.details
                   RETURNING id, recorded_at`
	err := r.storage.pool.QueryRow(ctx, query, inc.Kind, inc.Severity, inc.OrderID, inc.ProviderReference, inc.Details).Scan(&inc.ID, &inc.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Logger returns storage logger.
func (s *Storage) Logger() *slog.Logger {
	return s.logger
}
