package model

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
		OrderStatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsSkipsAndBackward(t *testing.T) {
	cases := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusPreparing},
		{OrderStatusPending, OrderStatusDelivered},
		{OrderStatusConfirmed, OrderStatusPending},
		{OrderStatusDelivered, OrderStatusOutForDelivery},
		{OrderStatusCompleted, OrderStatusRefunded},
		{OrderStatusCancelled, OrderStatusConfirmed},
		{OrderStatusRefunded, OrderStatusPending},
		{OrderStatusDelivered, OrderStatusCancelled},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Fatalf("expected %s -> %s to be rejected", c.from, c.to)
		}
	}
}

func TestCancelAndRefundAvailability(t *testing.T) {
	cancellable := []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady, OrderStatusOutForDelivery}
	for _, s := range cancellable {
		if !CanTransition(s, OrderStatusCancelled) {
			t.Fatalf("expected %s to allow cancellation", s)
		}
		if !CanTransition(s, OrderStatusRefunded) {
			t.Fatalf("expected %s to allow refund", s)
		}
	}
	if !CanTransition(OrderStatusDelivered, OrderStatusRefunded) {
		t.Fatal("expected delivered order to allow refund")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusDelivered} {
		if s.IsTerminal() {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestRequiresAssignment(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCompleted} {
		if !s.RequiresAssignment() {
			t.Fatalf("expected %s to require assignment", s)
		}
	}
	if OrderStatusConfirmed.RequiresAssignment() {
		t.Fatal("confirmed must not require assignment")
	}
}

func TestIsEarly(t *testing.T) {
	if !OrderStatusPending.IsEarly() {
		t.Fatal("pending must be early")
	}
	if OrderStatusConfirmed.IsEarly() {
		t.Fatal("confirmed must not be early")
	}
}
