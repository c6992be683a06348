package devicepolicy

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestDispatcher_PendingAndAck(t *testing.T) {
	repo := NewMemoryRepository()
	breaker := NewCircuitBreaker(BreakerConfig{})
	var mu sync.Mutex
	engine := NewEngine(repo, breaker, testLogger(), nil, &mu)
	dispatcher := NewDispatcher(repo)
	ctx := context.Background()

	mustApply(t, engine, ctx, EventPayload{Serial: "SN1", EventType: EventDPCEnrolled})

	pending, err := dispatcher.Pending(ctx, "SN1")
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending() = %+v, want exactly one entry", pending)
	}

	if err := dispatcher.Ack(ctx, pending[0].ID); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	after, err := dispatcher.Pending(ctx, "SN1")
	if err != nil {
		t.Fatalf("Pending() after ack error = %v", err)
	}
	if len(after) != 0 {
		t.Errorf("Pending() after ack = %+v, want empty", after)
	}
}

func TestDispatcher_AckIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	breaker := NewCircuitBreaker(BreakerConfig{})
	var mu sync.Mutex
	engine := NewEngine(repo, breaker, testLogger(), nil, &mu)
	dispatcher := NewDispatcher(repo)
	ctx := context.Background()

	mustApply(t, engine, ctx, EventPayload{Serial: "SN1", EventType: EventDPCEnrolled})
	pending, _ := dispatcher.Pending(ctx, "SN1")

	if err := dispatcher.Ack(ctx, pending[0].ID); err != nil {
		t.Fatalf("first Ack() error = %v", err)
	}
	if err := dispatcher.Ack(ctx, pending[0].ID); err != nil {
		t.Errorf("second Ack() on the same id should succeed, got %v", err)
	}
}

func TestDispatcher_AckUnknownID(t *testing.T) {
	repo := NewMemoryRepository()
	dispatcher := NewDispatcher(repo)

	err := dispatcher.Ack(context.Background(), "does-not-exist")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Ack() on unknown id error = %v, want *NotFoundError", err)
	}
}
