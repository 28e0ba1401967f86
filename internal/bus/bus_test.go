package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

func TestBus_ConsumeDeliversInOrder(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Publish(AgentRegistered{ID: "a1"})
	b.Publish(AgentRegistered{ID: "a2"})
	b.Publish(TaskCompleted{TaskID: "t1", AgentID: "a1", Success: true})

	want := []CoordinationEvent{
		AgentRegistered{ID: "a1"},
		AgentRegistered{ID: "a2"},
		TaskCompleted{TaskID: "t1", AgentID: "a1", Success: true},
	}
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := New()
	// No consumer at all; Publish must still return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(ResourceAlert{Resource: "cpu", Usage: 0.5})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no consumer attached")
	}
	if b.Pending() != 1000 {
		t.Fatalf("pending = %d, want 1000", b.Pending())
	}
}

func TestBus_SecondConsumeFailsFast(t *testing.T) {
	b := New()
	ctx := context.Background()

	if _, err := b.Consume(ctx); err != nil {
		t.Fatalf("first Consume: unexpected error: %v", err)
	}

	_, err := b.Consume(ctx)
	if err == nil {
		t.Fatal("expected second Consume to fail")
	}
	var opErr *hiveerrors.OperationFailed
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationFailed, got %T: %v", err, err)
	}
}

func TestBus_ShutdownStopsConsumerAfterDraining(t *testing.T) {
	b := New()
	ctx := context.Background()
	events, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Publish(AgentRegistered{ID: "a1"})
	b.Publish(Shutdown{})
	b.Publish(AgentRegistered{ID: "a2"}) // published after shutdown, never delivered

	select {
	case got := <-events:
		if got != (CoordinationEvent)(AgentRegistered{ID: "a1"}) {
			t.Fatalf("got %+v, want AgentRegistered{a1}", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pre-shutdown event")
	}

	select {
	case got := <-events:
		if _, ok := got.(Shutdown); !ok {
			t.Fatalf("got %+v, want Shutdown", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for shutdown event")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to be closed after Shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestBus_ContextCancelClosesConsumer(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close on context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}
