package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

func TestShouldStream_ExplicitFlag(t *testing.T) {
	inv := ToolInvocation{Description: "do nothing special", Parameters: map[string]any{"stream": true}}
	if !ShouldStream(inv) {
		t.Fatal("expected stream=true to trigger streaming")
	}
}

func TestShouldStream_DescriptionHint(t *testing.T) {
	inv := ToolInvocation{Description: "runs a batch_create of records"}
	if !ShouldStream(inv) {
		t.Fatal("expected batch_create hint to trigger streaming")
	}
}

func TestShouldStream_NoHintNoFlag(t *testing.T) {
	inv := ToolInvocation{Description: "adds two numbers"}
	if ShouldStream(inv) {
		t.Fatal("expected no streaming for a plain tool")
	}
}

func TestDerivePriority_FromParameter(t *testing.T) {
	inv := ToolInvocation{Parameters: map[string]any{"priority": "high"}}
	if got := DerivePriority(inv); got != PriorityHigh {
		t.Fatalf("priority = %v, want High", got)
	}
}

func TestDerivePriority_FromDescriptionKeywords(t *testing.T) {
	cases := map[string]StreamPriority{
		"emergency rollback":       PriorityCritical,
		"urgent customer request":  PriorityHigh,
		"background cleanup job":   PriorityLow,
		"ordinary report generate": PriorityNormal,
	}
	for desc, want := range cases {
		got := DerivePriority(ToolInvocation{Description: desc})
		if got != want {
			t.Fatalf("description %q: priority = %v, want %v", desc, got, want)
		}
	}
}

func TestS5_StreamingWrapFallback(t *testing.T) {
	attempt := 0
	factory := func(ctx context.Context, priority StreamPriority) (*Session, error) {
		attempt++
		return nil, &hiveerrors.RateLimit{Limit: 1, Window: "5s", RetryAfterMs: 1000}
	}
	w := NewWrapper(factory)

	inv := ToolInvocation{Description: "kicks off a batch_create import"}
	sent := false
	produce := func(ctx context.Context) ([]byte, bool, error) {
		if sent {
			return nil, true, nil
		}
		sent = true
		return []byte("row"), false, nil
	}

	env, run, handled := w.Invoke(context.Background(), "stream-s5", inv, produce)
	if !handled {
		t.Fatal("expected the batch_create description to be handled as streaming")
	}
	if !env.Streaming || !env.Fallback {
		t.Fatalf("expected streaming=true fallback=true, got %+v", env)
	}
	if attempt != 1 {
		t.Fatalf("expected advanced session creation to be attempted exactly once, got %d", attempt)
	}

	if err := run(); err != nil {
		t.Fatalf("unexpected error running fallback: %v", err)
	}
}

func TestWrapper_AdvancedPathUsedWhenFactorySucceeds(t *testing.T) {
	fc := NewFlowController(1)
	var created *Session
	factory := func(ctx context.Context, priority StreamPriority) (*Session, error) {
		permit, err := fc.Acquire(ctx, priority)
		if err != nil {
			return nil, err
		}
		handle := NewStreamHandle("stream-adv")
		bp := NewBackpressureController(1000, 100)
		created = NewSession("stream-adv", handle, permit, bp, DefaultResourceLimits())
		return created, nil
	}
	w := NewWrapper(factory)

	inv := ToolInvocation{Description: "analyze_large dataset", Parameters: map[string]any{"priority": "critical"}}
	sent := false
	produce := func(ctx context.Context) ([]byte, bool, error) {
		if sent {
			return nil, true, nil
		}
		sent = true
		return []byte("chunk"), false, nil
	}

	env, run, handled := w.Invoke(context.Background(), "stream-adv", inv, produce)
	if !handled || env.Fallback {
		t.Fatalf("expected non-fallback advanced envelope, got %+v handled=%v", env, handled)
	}

	ch, _ := created.Subscribe()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-ch:
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out running advanced session")
	}
	<-drained
}

func TestWrapper_NonStreamingToolIsUnhandled(t *testing.T) {
	w := NewWrapper(func(ctx context.Context, priority StreamPriority) (*Session, error) {
		t.Fatal("factory should not be called for a non-streaming tool")
		return nil, nil
	})
	inv := ToolInvocation{Description: "adds two numbers"}
	_, _, handled := w.Invoke(context.Background(), "stream-none", inv, nil)
	if handled {
		t.Fatal("expected a plain tool invocation to be unhandled")
	}
}
