package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/avoray/ordersync/internal/domain/model"
	testhelpers "github.com/avoray/ordersync/internal/test"
)

func TestObserverEnqueuesCustomerNotification(t *testing.T) {
	outbox := testhelpers.NewOutboxRepositoryStub()
	planner := NewNotificationPlanner(outbox, 2*time.Minute, discardLogger())

	obs := planner.Observer()
	obs(context.Background(), &model.Order{
		ID:            7,
		Number:        "ORD-7",
		CustomerEmail: "user@example.com",
		Status:        model.OrderStatusConfirmed,
		TotalAmount:   19.90,
	}, model.OrderStatusPending)

	if len(outbox.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(outbox.Entries))
	}
	for _, entry := range outbox.Entries {
		if entry.EventType != model.EventOrderConfirmed {
			t.Fatalf("unexpected event %s", entry.EventType)
		}
		if entry.Recipient != "user@example.com" {
			t.Fatalf("unexpected recipient %s", entry.Recipient)
		}
		if entry.Priority != model.PriorityNormal {
			t.Fatalf("unexpected priority %s", entry.Priority)
		}
		if entry.Variables["order_number"] != "ORD-7" || entry.Variables["total_amount"] != "19.90" {
			t.Fatalf("unexpected variables %v", entry.Variables)
		}
	}
}

func TestObserverSkipsNonNotifiableAndEmptyRecipient(t *testing.T) {
	outbox := testhelpers.NewOutboxRepositoryStub()
	planner := NewNotificationPlanner(outbox, 2*time.Minute, discardLogger())
	obs := planner.Observer()

	// preparing is an internal stage, no customer notification.
	obs(context.Background(), &model.Order{ID: 7, CustomerEmail: "user@example.com", Status: model.OrderStatusPreparing}, model.OrderStatusConfirmed)
	// cancelled without a recipient cannot be delivered.
	obs(context.Background(), &model.Order{ID: 8, Status: model.OrderStatusCancelled}, model.OrderStatusPending)

	if len(outbox.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(outbox.Entries))
	}
}

func TestObserverCancellationIsHighPriority(t *testing.T) {
	outbox := testhelpers.NewOutboxRepositoryStub()
	planner := NewNotificationPlanner(outbox, 2*time.Minute, discardLogger())

	planner.Observer()(context.Background(), &model.Order{
		ID: 7, Number: "ORD-7", CustomerEmail: "user@example.com", Status: model.OrderStatusCancelled,
	}, model.OrderStatusPending)

	for _, entry := range outbox.Entries {
		if entry.Priority != model.PriorityHigh {
			t.Fatalf("cancellation must be high priority, got %s", entry.Priority)
		}
	}
}

func TestEnqueueCoalescesInsideWindow(t *testing.T) {
	outbox := testhelpers.NewOutboxRepositoryStub()
	planner := NewNotificationPlanner(outbox, 2*time.Minute, discardLogger())
	base := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	planner.now = func() time.Time { return base }

	first, err := planner.Enqueue(context.Background(), model.EventOrderConfirmed, 7, "user@example.com", "order.confirmed",
		map[string]string{"a": "1"}, model.PriorityNormal)
	if err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	planner.now = func() time.Time { return base.Add(30 * time.Second) }
	second, err := planner.Enqueue(context.Background(), model.EventOrderConfirmed, 7, "user@example.com", "order.confirmed",
		map[string]string{"b": "2"}, model.PriorityNormal)
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected coalesced entry, got ids %d and %d", first.ID, second.ID)
	}
	if len(outbox.Entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(outbox.Entries))
	}
	if second.Variables["a"] != "1" || second.Variables["b"] != "2" {
		t.Fatalf("expected merged variables, got %v", second.Variables)
	}
}

func TestEnqueueNewWindowCreatesNewEntry(t *testing.T) {
	outbox := testhelpers.NewOutboxRepositoryStub()
	planner := NewNotificationPlanner(outbox, 2*time.Minute, discardLogger())
	base := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	planner.now = func() time.Time { return base }

	if _, err := planner.Enqueue(context.Background(), model.EventOrderConfirmed, 7, "user@example.com", "order.confirmed", nil, model.PriorityNormal); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	planner.now = func() time.Time { return base.Add(3 * time.Minute) }
	if _, err := planner.Enqueue(context.Background(), model.EventOrderConfirmed, 7, "user@example.com", "order.confirmed", nil, model.PriorityNormal); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}

	if len(outbox.Entries) != 2 {
		t.Fatalf("expected 2 entries across windows, got %d", len(outbox.Entries))
	}
}
