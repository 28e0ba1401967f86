package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu          sync.Mutex
	agentCount  int
	completions []TaskCompleted
	merges      []map[string]any
}

func (s *recordingSink) AgentCountDelta(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentCount += delta
}

func (s *recordingSink) RecordTaskCompletion(taskID, agentID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, TaskCompleted{TaskID: taskID, AgentID: agentID, Success: success})
}

func (s *recordingSink) MergeMetricsSnapshot(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges = append(s.merges, payload)
}

func (s *recordingSink) snapshot() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentCount, len(s.completions), len(s.merges)
}

func TestDispatcher_RoutesEventsToSink(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	d := NewDispatcher(b, sink, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	b.Publish(AgentRegistered{ID: "a1"})
	b.Publish(AgentRegistered{ID: "a2"})
	b.Publish(AgentRemoved{ID: "a1"})
	b.Publish(TaskCompleted{TaskID: "t1", AgentID: "a2", Success: true})
	b.Publish(MetricsUpdate{Payload: map[string]any{"queue_depth": 3}})
	b.Publish(Shutdown{})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after Shutdown")
	}

	agents, completions, merges := sink.snapshot()
	if agents != 1 {
		t.Fatalf("agent count = %d, want 1", agents)
	}
	if completions != 1 {
		t.Fatalf("completions = %d, want 1", completions)
	}
	if merges != 1 {
		t.Fatalf("merges = %d, want 1", merges)
	}
}

func TestDispatcher_SecondRunFailsFast(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	d1 := NewDispatcher(b, sink, nil)
	d2 := NewDispatcher(b, sink, nil)

	go d1.Run(context.Background())
	time.Sleep(10 * time.Millisecond)

	if err := d2.Run(context.Background()); err == nil {
		t.Fatal("expected second dispatcher to fail")
	}
}
