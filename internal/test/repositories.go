package test

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
)

// OrderRepositoryStub stores orders in-memory for tests.
type OrderRepositoryStub struct {
	mu     sync.Mutex
	ByID   map[int64]*model.Order
	Next   int64
	Err    error
	CASErr error
}

// NewOrderRepositoryStub constructs stub repository with initialized maps.
func NewOrderRepositoryStub() *OrderRepositoryStub {
	return &OrderRepositoryStub{ByID: make(map[int64]*model.Order), Next: 1}
}

// Seed inserts an order directly and returns the stored copy.
func (s *OrderRepositoryStub) Seed(order model.Order) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == 0 {
		order.ID = s.Next
		s.Next++
	} else if order.ID >= s.Next {
		s.Next = order.ID + 1
	}
	stored := order
	s.ByID[stored.ID] = &stored
	return &stored
}

// Create registers an order unless the stub has an explicit error.
func (s *OrderRepositoryStub) Create(ctx context.Context, order model.Order) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	stored := s.Seed(order)
	clone := *stored
	return &clone, nil
}

// GetByID fetches an order by identifier or returns not found.
func (s *OrderRepositoryStub) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.ByID[id]; ok {
		clone := *order
		return &clone, nil
	}
	return nil, domainErrors.ErrNotFound
}

// GetByNumber fetches an order by its human-facing number.
func (s *OrderRepositoryStub) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.ByID {
		if order.Number == number {
			clone := *order
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// GetByPaymentReference fetches an order by its stored gateway reference.
func (s *OrderRepositoryStub) GetByPaymentReference(ctx context.Context, reference string) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.ByID {
		if order.PaymentReference != nil && *order.PaymentReference == reference {
			clone := *order
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// UpdateStatusCAS flips the status only when the stored one matches expected,
// mirroring the zero-rows-affected contract with ErrNotFound.
func (s *OrderRepositoryStub) UpdateStatusCAS(ctx context.Context, orderID int64, expected, next model.OrderStatus) (*model.Order, error) {
	if s.CASErr != nil {
		return nil, s.CASErr
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[orderID]
	if !ok || order.Status != expected {
		return nil, domainErrors.ErrNotFound
	}
	order.Status = next
	order.UpdatedAt = time.Now()
	clone := *order
	return &clone, nil
}

// AssignAgent sets the delivery agent on the stored order.
func (s *OrderRepositoryStub) AssignAgent(ctx context.Context, orderID, agentID int64) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[orderID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	order.AssignedAgentID = &agentID
	order.UpdatedAt = time.Now()
	clone := *order
	return &clone, nil
}

// MarkPaid emulates the storage-side order update performed by LinkSuccess.
func (s *OrderRepositoryStub) MarkPaid(orderID int64, paidAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.ByID[orderID]; ok {
		order.PaymentStatus = model.PaymentStatusPaid
		if order.PaidAt == nil {
			order.PaidAt = &paidAt
		}
	}
}

// MarkPaymentFailed emulates the storage-side failure flag of LinkFailure.
func (s *OrderRepositoryStub) MarkPaymentFailed(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.ByID[orderID]; ok && order.PaymentStatus != model.PaymentStatusPaid {
		order.PaymentStatus = model.PaymentStatusFailed
	}
}

// PaymentRepositoryStub stores gateway transactions in-memory. When Orders is
// set, link operations propagate payment status the way the storage layer
// does inside one transaction.
type PaymentRepositoryStub struct {
	mu     sync.Mutex
	ByRef  map[string]*model.PaymentTransaction
	Orders *OrderRepositoryStub
	Next   int64
	Err    error
}

// NewPaymentRepositoryStub constructs the stub with initialized maps.
func NewPaymentRepositoryStub(orders *OrderRepositoryStub) *PaymentRepositoryStub {
	return &PaymentRepositoryStub{ByRef: make(map[string]*model.PaymentTransaction), Orders: orders, Next: 1}
}

// GetByProviderReference fetches a transaction or returns not found.
func (s *PaymentRepositoryStub) GetByProviderReference(ctx context.Context, reference string) (*model.PaymentTransaction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.ByRef[reference]; ok {
		clone := *tx
		return &clone, nil
	}
	return nil, domainErrors.ErrNotFound
}

// UpsertUnlinked records a transaction without touching any order.
func (s *PaymentRepositoryStub) UpsertUnlinked(ctx context.Context, reference string, status model.TransactionStatus, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.ByRef[reference]
	if !ok {
		tx = &model.PaymentTransaction{ID: s.Next, ProviderReference: reference, CreatedAt: time.Now()}
		s.Next++
		s.ByRef[reference] = tx
	}
	tx.Status = status
	tx.Amount = amount
	tx.Metadata = meta
	tx.UpdatedAt = time.Now()
	clone := *tx
	return &clone, nil
}

// LinkSuccess links the transaction to the order and marks the order paid.
func (s *PaymentRepositoryStub) LinkSuccess(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata, paidAt time.Time) (*model.PaymentTransaction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	tx, ok := s.ByRef[reference]
	if !ok {
		tx = &model.PaymentTransaction{ID: s.Next, ProviderReference: reference, CreatedAt: time.Now()}
		s.Next++
		s.ByRef[reference] = tx
	}
	if tx.OrderID == nil {
		tx.OrderID = &orderID
	}
	tx.Status = model.TransactionStatusSuccess
	tx.Amount = amount
	tx.Metadata = meta
	tx.PaidAt = &paidAt
	tx.UpdatedAt = time.Now()
	clone := *tx
	s.mu.Unlock()

	if s.Orders != nil {
		s.Orders.MarkPaid(orderID, paidAt)
	}
	return &clone, nil
}

// LinkFailure records a failed transaction against the order.
func (s *PaymentRepositoryStub) LinkFailure(ctx context.Context, reference string, orderID int64, amount float64, meta model.ReferenceMetadata) (*model.PaymentTransaction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	tx, ok := s.ByRef[reference]
	if !ok {
		tx = &model.PaymentTransaction{ID: s.Next, ProviderReference: reference, CreatedAt: time.Now()}
		s.Next++
		s.ByRef[reference] = tx
	}
	if tx.OrderID == nil {
		tx.OrderID = &orderID
	}
	tx.Status = model.TransactionStatusFailed
	tx.Amount = amount
	tx.Metadata = meta
	tx.UpdatedAt = time.Now()
	clone := *tx
	s.mu.Unlock()

	if s.Orders != nil {
		s.Orders.MarkPaymentFailed(orderID)
	}
	return &clone, nil
}

// ListSuccessfulUnsettled returns successful transactions not linked to a paid
// order.
func (s *PaymentRepositoryStub) ListSuccessfulUnsettled(ctx context.Context, limit int) ([]model.PaymentTransaction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PaymentTransaction
	for _, tx := range s.ByRef {
		if tx.Status != model.TransactionStatusSuccess {
			continue
		}
		settled := false
		if tx.OrderID != nil && s.Orders != nil {
			if order, ok := s.Orders.ByID[*tx.OrderID]; ok && order.PaymentStatus == model.PaymentStatusPaid {
				settled = true
			}
		}
		if !settled {
			out = append(out, *tx)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LockRepositoryStub keeps lock rows in-memory with TTL semantics.
type LockRepositoryStub struct {
	mu    sync.Mutex
	Locks map[int64]*model.OrderLock
	Err   error
	Now   func() time.Time
}

// NewLockRepositoryStub constructs the stub.
func NewLockRepositoryStub() *LockRepositoryStub {
	return &LockRepositoryStub{Locks: make(map[int64]*model.OrderLock), Now: time.Now}
}

// TryAcquire inserts a lock unless an unexpired holder owns the order.
func (s *LockRepositoryStub) TryAcquire(ctx context.Context, orderID int64, lockKey, holderID string, ttl time.Duration) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	if existing, ok := s.Locks[orderID]; ok && existing.ReleasedAt == nil && !existing.Expired(now) {
		return false, nil
	}
	s.Locks[orderID] = &model.OrderLock{
		OrderID:    orderID,
		LockKey:    lockKey,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

// Release marks the lock released only for the matching unexpired holder.
func (s *LockRepositoryStub) Release(ctx context.Context, orderID int64, holderID string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	lock, ok := s.Locks[orderID]
	if !ok || lock.ReleasedAt != nil || lock.HolderID != holderID || lock.Expired(now) {
		return false, nil
	}
	released := now
	lock.ReleasedAt = &released
	return true, nil
}

// Get returns the active lock for the order, if any.
func (s *LockRepositoryStub) Get(ctx context.Context, orderID int64) (*model.OrderLock, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.Locks[orderID]; ok && lock.ReleasedAt == nil {
		clone := *lock
		return &clone, nil
	}
	return nil, domainErrors.ErrNotFound
}

// ReapExpired releases locks whose TTL lapsed.
func (s *LockRepositoryStub) ReapExpired(ctx context.Context) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var reaped int64
	for _, lock := range s.Locks {
		if lock.ReleasedAt == nil && lock.Expired(now) {
			released := now
			lock.ReleasedAt = &released
			reaped++
		}
	}
	return reaped, nil
}

// IdempotencyRepositoryStub keeps replay records in-memory.
type IdempotencyRepositoryStub struct {
	mu      sync.Mutex
	Records map[string]*model.IdempotencyRecord
	Err     error
	Now     func() time.Time
}

// NewIdempotencyRepositoryStub constructs the stub.
func NewIdempotencyRepositoryStub() *IdempotencyRepositoryStub {
	return &IdempotencyRepositoryStub{Records: make(map[string]*model.IdempotencyRecord), Now: time.Now}
}

// Begin inserts a processing record or returns the existing one.
func (s *IdempotencyRepositoryStub) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *model.IdempotencyRecord, error) {
	if s.Err != nil {
		return false, nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.Records[key]; ok {
		clone := *existing
		return false, &clone, nil
	}
	now := s.Now()
	s.Records[key] = &model.IdempotencyRecord{
		Key:                key,
		RequestFingerprint: fingerprint,
		Status:             model.IdempotencyStatusProcessing,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
	return true, nil, nil
}

// Complete finalizes the record with a status and optional payload.
func (s *IdempotencyRepositoryStub) Complete(ctx context.Context, key string, status model.IdempotencyStatus, payload []byte) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Records[key]
	if !ok {
		return domainErrors.ErrNotFound
	}
	now := s.Now()
	rec.Status = status
	rec.ResponsePayload = payload
	rec.CompletedAt = &now
	return nil
}

// PurgeExpired removes records past their TTL.
func (s *IdempotencyRepositoryStub) PurgeExpired(ctx context.Context) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var purged int64
	for key, rec := range s.Records {
		if !rec.ExpiresAt.After(now) {
			delete(s.Records, key)
			purged++
		}
	}
	return purged, nil
}

// OutboxRepositoryStub keeps the notification queue in-memory with the same
// dedupe and claim semantics as the storage layer.
type OutboxRepositoryStub struct {
	mu          sync.Mutex
	Entries     map[string]*model.OutboxEntry
	DeadEntries []model.DeadLetterEntry
	Next        int64
	Err         error
}

// NewOutboxRepositoryStub constructs the stub.
func NewOutboxRepositoryStub() *OutboxRepositoryStub {
	return &OutboxRepositoryStub{Entries: make(map[string]*model.OutboxEntry), Next: 1}
}

// Enqueue inserts or merges by dedupe key, reopening failed entries.
func (s *OutboxRepositoryStub) Enqueue(ctx context.Context, entry model.OutboxEntry) (*model.OutboxEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.Entries[entry.DedupeKey]; ok {
		for k, v := range entry.Variables {
			if existing.Variables == nil {
				existing.Variables = map[string]string{}
			}
			existing.Variables[k] = v
		}
		if existing.Status == model.OutboxStatusFailed {
			existing.Status = model.OutboxStatusQueued
			existing.RetryCount = 0
		}
		existing.UpdatedAt = time.Now()
		clone := *existing
		return &clone, nil
	}
	entry.ID = s.Next
	s.Next++
	entry.Status = model.OutboxStatusQueued
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	stored := entry
	s.Entries[entry.DedupeKey] = &stored
	clone := stored
	return &clone, nil
}

// ClaimBatch returns due queued entries ordered by priority then schedule.
func (s *OutboxRepositoryStub) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.OutboxEntry
	for _, entry := range s.Entries {
		if entry.Status == model.OutboxStatusQueued && !entry.ScheduledAt.After(now) {
			due = append(due, entry)
		}
	}
	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].Priority.Rank() > due[i].Priority.Rank() ||
				(due[j].Priority.Rank() == due[i].Priority.Rank() && due[j].ScheduledAt.Before(due[i].ScheduledAt)) {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]model.OutboxEntry, 0, len(due))
	for _, entry := range due {
		entry.Status = model.OutboxStatusProcessing
		out = append(out, *entry)
	}
	return out, nil
}

// MarkSent finalizes a delivered entry.
func (s *OutboxRepositoryStub) MarkSent(ctx context.Context, id int64) error {
	return s.setStatus(id, model.OutboxStatusSent, nil)
}

// MarkFailed terminally fails an entry.
func (s *OutboxRepositoryStub) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.setStatus(id, model.OutboxStatusFailed, &reason)
}

// RequeueStuck reopens processing entries untouched since cutoff.
func (s *OutboxRepositoryStub) RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var requeued int64
	for _, entry := range s.Entries {
		if entry.Status == model.OutboxStatusProcessing && !entry.UpdatedAt.After(cutoff) {
			entry.Status = model.OutboxStatusQueued
			entry.UpdatedAt = time.Now()
			requeued++
		}
	}
	return requeued, nil
}

// Reschedule requeues an entry for a later attempt.
func (s *OutboxRepositoryStub) Reschedule(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.Entries {
		if entry.ID == id {
			entry.Status = model.OutboxStatusQueued
			entry.RetryCount = retryCount
			entry.ScheduledAt = at
			entry.ErrorMessage = &reason
			entry.UpdatedAt = time.Now()
			return nil
		}
	}
	return domainErrors.ErrNotFound
}

// MoveToDeadLetter archives the entry and removes it from the live queue.
func (s *OutboxRepositoryStub) MoveToDeadLetter(ctx context.Context, entry model.OutboxEntry, finalError string) (*model.DeadLetterEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := model.DeadLetterEntry{
		ID:              int64(len(s.DeadEntries) + 1),
		OriginalEntryID: entry.ID,
		OrderID:         entry.OrderID,
		EventType:       entry.EventType,
		Recipient:       entry.Recipient,
		FinalError:      finalError,
		TotalAttempts:   entry.RetryCount,
		MovedAt:         time.Now(),
	}
	s.DeadEntries = append(s.DeadEntries, dead)
	delete(s.Entries, entry.DedupeKey)
	clone := dead
	return &clone, nil
}

// ListDeadLetters returns archived notifications.
func (s *OutboxRepositoryStub) ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.DeadEntries
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]model.DeadLetterEntry(nil), out...), nil
}

func (s *OutboxRepositoryStub) setStatus(id int64, status model.OutboxStatus, reason *string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.Entries {
		if entry.ID == id {
			entry.Status = status
			entry.ErrorMessage = reason
			entry.UpdatedAt = time.Now()
			return nil
		}
	}
	return domainErrors.ErrNotFound
}

// Find returns the stored entry by id, if any.
func (s *OutboxRepositoryStub) Find(id int64) *model.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.Entries {
		if entry.ID == id {
			clone := *entry
			return &clone
		}
	}
	return nil
}

// AuditRepositoryStub collects transitions and incidents.
type AuditRepositoryStub struct {
	mu          sync.Mutex
	Transitions []model.AuditRecord
	Incidents   []model.Incident
	AppendErr   error
	IncidentErr error
}

// AppendTransition records a transition.
func (s *AuditRepositoryStub) AppendTransition(ctx context.Context, rec model.AuditRecord) error {
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.Transitions) + 1)
	rec.RecordedAt = time.Now()
	s.Transitions = append(s.Transitions, rec)
	return nil
}

// ListTransitions returns records for the order.
func (s *AuditRepositoryStub) ListTransitions(ctx context.Context, orderID int64) ([]model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditRecord
	for _, rec := range s.Transitions {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// RecordIncident stores an anomaly record, keeping one open incident per
// (kind, provider reference) the way the storage upsert does.
func (s *AuditRepositoryStub) RecordIncident(ctx context.Context, inc model.Incident) (*model.Incident, error) {
	if s.IncidentErr != nil {
		return nil, s.IncidentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Incidents {
		if s.Incidents[i].Kind == inc.Kind && s.Incidents[i].ProviderReference == inc.ProviderReference {
			s.Incidents[i].Severity = inc.Severity
			if s.Incidents[i].OrderID == nil {
				s.Incidents[i].OrderID = inc.OrderID
			}
			s.Incidents[i].Details = inc.Details
			clone := s.Incidents[i]
			return &clone, nil
		}
	}
	inc.ID = int64(len(s.Incidents) + 1)
	inc.RecordedAt = time.Now()
	s.Incidents = append(s.Incidents, inc)
	clone := inc
	return &clone, nil
}
