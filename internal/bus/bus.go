// Package bus implements the substrate's CoordinationBus: a single
// unbounded producer-to-consumer event channel. Producers never block;
// the one dedicated consumer receives events in producer order.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

// CoordinationEvent is the tagged union of events the bus carries.
type CoordinationEvent interface {
	isCoordinationEvent()
}

// AgentRegistered is published when a new agent is added to the registry.
type AgentRegistered struct {
	ID string
}

// AgentRemoved is published when an agent is removed from the registry.
type AgentRemoved struct {
	ID string
}

// TaskCompleted is published exactly once per task, regardless of outcome.
type TaskCompleted struct {
	TaskID  string
	AgentID string
	Success bool
}

// MetricsUpdate carries an out-of-band metrics snapshot to be merged by
// the consumer.
type MetricsUpdate struct {
	Payload map[string]any
}

// ResourceAlert is published when a resource probe sample exceeds a
// utilization ceiling.
type ResourceAlert struct {
	Resource string
	Usage    float64
}

// Shutdown tells the consumer loop to stop after draining it.
type Shutdown struct{}

func (AgentRegistered) isCoordinationEvent() {}
func (AgentRemoved) isCoordinationEvent()    {}
func (TaskCompleted) isCoordinationEvent()   {}
func (MetricsUpdate) isCoordinationEvent()   {}
func (ResourceAlert) isCoordinationEvent()   {}
func (Shutdown) isCoordinationEvent()        {}

// Bus is a single-consumer, unbounded event channel. Publish never blocks:
// events accumulate on an internal queue until the consumer drains them.
// Exactly one Consume call may succeed per Bus; every call after that
// fails fast with hiveerrors.OperationFailed, mirroring the "take the
// receiver once" contract of the coordinator it serves.
type Bus struct {
	mu       sync.Mutex
	queue    []CoordinationEvent
	signal   chan struct{}
	consumed atomic.Bool
}

// New creates an empty, unconsumed Bus.
func New() *Bus {
	return &Bus{signal: make(chan struct{}, 1)}
}

// Publish enqueues an event for the consumer. Non-blocking: it only ever
// acquires the internal mutex, never waits on the consumer.
func (b *Bus) Publish(ev CoordinationEvent) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Consume takes ownership of the bus's single receive side and returns a
// channel of events in producer order. The channel closes when ctx is
// canceled or a Shutdown event has been delivered. Calling Consume more
// than once returns hiveerrors.OperationFailed.
func (b *Bus) Consume(ctx context.Context) (<-chan CoordinationEvent, error) {
	if !b.consumed.CompareAndSwap(false, true) {
		return nil, &hiveerrors.OperationFailed{Reason: "coordination bus already has a consumer"}
	}
	out := make(chan CoordinationEvent)
	go b.pump(ctx, out)
	return out, nil
}

func (b *Bus) pump(ctx context.Context, out chan<- CoordinationEvent) {
	defer close(out)
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			select {
			case <-b.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}

		if _, isShutdown := ev.(Shutdown); isShutdown {
			return
		}
	}
}

// Pending returns the number of events currently queued and undelivered.
// Intended for tests and diagnostics, not for flow control.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
