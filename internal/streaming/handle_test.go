package streaming

import (
	"errors"
	"testing"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

func TestStreamHandle_BroadcastToAllSubscribers(t *testing.T) {
	h := NewStreamHandle("s1")
	ch1, _ := h.Subscribe()
	ch2, _ := h.Subscribe()

	if err := h.SendUpdate("hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, ch := range []<-chan Chunk{ch1, ch2} {
		select {
		case c := <-ch:
			if c.Kind != ChunkUpdate || c.Payload != "hello" {
				t.Fatalf("unexpected chunk: %+v", c)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for chunk")
		}
	}
}

func TestStreamHandle_NoSubscribersIsInternalError(t *testing.T) {
	h := NewStreamHandle("s1")
	err := h.SendUpdate("x")
	var ierr *hiveerrors.Internal
	if !errors.As(err, &ierr) {
		t.Fatalf("expected Internal error, got %v", err)
	}
}

func TestStreamHandle_SlowSubscriberLagsWithoutBlockingProducer(t *testing.T) {
	h := NewStreamHandle("s1")
	h.capacity = 2
	ch, _ := h.Subscribe()

	// Never read from ch: producer must not block even past capacity.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.SendUpdate(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on a slow subscriber")
	}

	// The subscriber should see only the most recent entries (drop-oldest).
	drained := 0
	var last any
	for {
		select {
		case c := <-ch:
			drained++
			last = c.Payload
		default:
			goto doneDrain
		}
	}
doneDrain:
	if drained == 0 {
		t.Fatal("expected at least one surviving chunk")
	}
	if last != 9 {
		t.Fatalf("expected most recent chunk to survive, got %v", last)
	}
}

func TestStreamHandle_TerminalStatesAreAbsorbing(t *testing.T) {
	h := NewStreamHandle("s1")
	ch, _ := h.Subscribe()
	_ = ch

	if err := h.SendFinal("done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Status() != HandleCompleted {
		t.Fatalf("status = %v, want Completed", h.Status())
	}

	err := h.SendUpdate("late")
	var ierr *hiveerrors.Internal
	if !errors.As(err, &ierr) {
		t.Fatalf("expected Internal error for send after terminal, got %v", err)
	}
}
