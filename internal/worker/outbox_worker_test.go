package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avoray/ordersync/internal/adapter/sender"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/pkg/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type outboxFacadeStub struct {
	mu          sync.Mutex
	due         []model.OutboxEntry
	sent        []int64
	failed      map[int64]string
	rescheduled map[int64]time.Time
	retryCounts map[int64]int
	dead        []model.OutboxEntry
	suppressed  map[string]bool
	suppressErr error
	sendFn      func(entry model.OutboxEntry) (*sender.Result, error)
}

func newOutboxFacadeStub() *outboxFacadeStub {
	return &outboxFacadeStub{
		failed:      make(map[int64]string),
		rescheduled: make(map[int64]time.Time),
		retryCounts: make(map[int64]int),
		suppressed:  make(map[string]bool),
	}
}

func (s *outboxFacadeStub) ClaimDueNotifications(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.due
	s.due = nil
	return out, nil
}

func (s *outboxFacadeStub) MarkNotificationSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *outboxFacadeStub) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

func (s *outboxFacadeStub) RescheduleNotification(ctx context.Context, id int64, retryCount int, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled[id] = at
	s.retryCounts[id] = retryCount
	return nil
}

func (s *outboxFacadeStub) DeadLetterNotification(ctx context.Context, entry model.OutboxEntry, finalError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, entry)
	return nil
}

func (s *outboxFacadeStub) IsSuppressed(ctx context.Context, recipient string) (bool, error) {
	if s.suppressErr != nil {
		return false, s.suppressErr
	}
	return s.suppressed[recipient], nil
}

func (s *outboxFacadeStub) SendNotification(ctx context.Context, entry model.OutboxEntry) (*sender.Result, error) {
	if s.sendFn != nil {
		return s.sendFn(entry)
	}
	return &sender.Result{Success: true}, nil
}

func newTestWorker(facade OutboxFacade) *OutboxWorker {
	cfg := OutboxConfig{
		PollInterval: time.Millisecond,
		BatchSize:    8,
		Workers:      1,
		MaxRetries:   3,
		BackoffBase:  30 * time.Second,
		BackoffCap:   15 * time.Minute,
		SendTimeout:  time.Second,
	}
	return NewOutboxWorker(facade, ratelimit.New(100, 1000), cfg, discardLogger())
}

func entryFixture(id int64) model.OutboxEntry {
	return model.OutboxEntry{
		ID:          id,
		EventType:   model.EventOrderConfirmed,
		OrderID:     7,
		Recipient:   "user@example.com",
		TemplateKey: "order.confirmed",
		Priority:    model.PriorityNormal,
	}
}

func TestHandleEntrySuccessMarksSent(t *testing.T) {
	facade := newOutboxFacadeStub()
	w := newTestWorker(facade)

	w.handleEntry(context.Background(), entryFixture(1))

	if len(facade.sent) != 1 || facade.sent[0] != 1 {
		t.Fatalf("expected entry marked sent, got %v", facade.sent)
	}
}

func TestHandleEntrySuppressedFailsTerminally(t *testing.T) {
	facade := newOutboxFacadeStub()
	facade.suppressed["user@example.com"] = true
	w := newTestWorker(facade)

	w.handleEntry(context.Background(), entryFixture(1))

	if _, ok := facade.failed[1]; !ok {
		t.Fatal("expected suppressed entry marked failed")
	}
	if len(facade.rescheduled) != 0 || len(facade.dead) != 0 {
		t.Fatal("suppression must not consume retries")
	}
}

func TestHandleEntryRateLimitedFailsTerminally(t *testing.T) {
	facade := newOutboxFacadeStub()
	w := newTestWorker(facade)
	w.limiter = ratelimit.New(1, 1)
	if !w.limiter.Allow("other@example.com") {
		t.Fatal("setup: first slot must pass")
	}

	w.handleEntry(context.Background(), entryFixture(1))

	if _, ok := facade.failed[1]; !ok {
		t.Fatal("expected rate limited entry marked failed")
	}
}

func TestHandleEntryFailureReschedulesWithBackoff(t *testing.T) {
	facade := newOutboxFacadeStub()
	facade.sendFn = func(model.OutboxEntry) (*sender.Result, error) {
		return &sender.Result{Success: false, Reason: "smtp 451"}, nil
	}
	w := newTestWorker(facade)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }

	w.handleEntry(context.Background(), entryFixture(1))

	at, ok := facade.rescheduled[1]
	if !ok {
		t.Fatal("expected reschedule after first failure")
	}
	if facade.retryCounts[1] != 1 {
		t.Fatalf("expected retry count 1, got %d", facade.retryCounts[1])
	}
	if want := base.Add(time.Minute); !at.Equal(want) {
		t.Fatalf("expected backoff to %v, got %v", want, at)
	}
}

func TestHandleEntryDeadLettersAfterRetryBudget(t *testing.T) {
	facade := newOutboxFacadeStub()
	facade.sendFn = func(model.OutboxEntry) (*sender.Result, error) {
		return nil, errors.New("connection refused")
	}
	w := newTestWorker(facade)

	entry := entryFixture(1)
	entry.RetryCount = 2
	w.handleEntry(context.Background(), entry)

	if len(facade.dead) != 1 {
		t.Fatalf("expected dead-lettered entry, got %d", len(facade.dead))
	}
	if facade.dead[0].RetryCount != 3 {
		t.Fatalf("expected 3 total attempts, got %d", facade.dead[0].RetryCount)
	}
	if len(facade.rescheduled) != 0 {
		t.Fatal("exhausted entry must not be rescheduled")
	}
}

func TestBackoffCapped(t *testing.T) {
	w := newTestWorker(newOutboxFacadeStub())

	if got := w.backoff(1); got != time.Minute {
		t.Fatalf("unexpected backoff for attempt 1: %v", got)
	}
	if got := w.backoff(20); got != 15*time.Minute {
		t.Fatalf("expected capped backoff, got %v", got)
	}
}

func TestWorkerOutlivesStartContext(t *testing.T) {
	facade := newOutboxFacadeStub()
	facade.due = []model.OutboxEntry{entryFixture(1)}
	w := newTestWorker(facade)

	// Lifecycle startup contexts end as soon as startup returns; the pool
	// must keep draining until Stop.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for {
		facade.mu.Lock()
		done := len(facade.sent) == 1
		facade.mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("worker died with the startup context")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	facade := newOutboxFacadeStub()
	facade.due = []model.OutboxEntry{entryFixture(1), entryFixture(2)}
	w := newTestWorker(facade)

	w.Start(context.Background())
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for {
		facade.mu.Lock()
		done := len(facade.sent) == 2
		facade.mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("worker did not drain the queue in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
