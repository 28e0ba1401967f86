package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/agent"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
)

type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, task coordinator.Task) (string, error) {
	return "ok:" + task.ID, nil
}

type countingCollector struct {
	calls atomic.Int64
}

func (c *countingCollector) Collect(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func newHarness(t *testing.T, probe resourceprobe.Probe) (*bus.Bus, *agent.Registry, *coordinator.Distributor) {
	t.Helper()
	b := bus.New()
	reg := agent.NewRegistry(b, probe, nil)
	dist := coordinator.NewDistributor(coordinator.Config{PrimaryCapacity: 16, ExecutionHistoryCapacity: 100}, b, echoExecutor{}, reg, nil)
	return b, reg, dist
}

func TestSupervisor_WorkStealingTickDistributesQueuedTasks(t *testing.T) {
	b := bus.New()
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	reg := agent.NewRegistry(b, probe, nil)
	// A zero-capacity primary queue forces every submission straight to the
	// legacy fallback, so the tick has something to drain deterministically.
	dist := coordinator.NewDistributor(coordinator.Config{PrimaryCapacity: 1, ExecutionHistoryCapacity: 100}, b, echoExecutor{}, reg, nil)
	fillerID := dist.Create(coordinator.TaskConfig{Title: "filler"})
	_ = fillerID

	a, err := reg.Register(context.Background(), agent.RegisterConfig{Type: "worker"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	taskID := dist.Create(coordinator.TaskConfig{Title: "t1"})
	if !dist.LegacyQueueContains(taskID) {
		t.Fatal("expected the second task to overflow into the legacy queue")
	}

	sv := New(Config{WorkStealingInterval: 10 * time.Millisecond}, reg, dist, nil, nil, b, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sv.StartAll(ctx)

	deadline := time.After(time.Second)
	for dist.LegacyQueueContains(taskID) {
		select {
		case <-deadline:
			t.Fatal("task was never drained from the legacy queue by the work-stealing tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	sv.StopAll()
	_ = a
}

func TestSupervisor_ResourceMonitoringPublishesAlertAboveThreshold(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.95, MemoryUsage: 0.2}}
	b, reg, dist := newHarness(t, probe)

	sv := New(Config{ResourceMonitoringInterval: 10 * time.Millisecond, WorkStealingInterval: time.Hour, LearningInterval: time.Hour, SwarmCoordinationInterval: time.Hour, MetricsCollectionInterval: time.Hour}, reg, dist, nil, probe, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	sv.StartAll(ctx)

	select {
	case ev := <-events:
		alert, ok := ev.(bus.ResourceAlert)
		if !ok {
			t.Fatalf("expected ResourceAlert, got %T", ev)
		}
		if alert.Resource != "cpu" || alert.Usage != 0.95 {
			t.Fatalf("unexpected alert: %+v", alert)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a ResourceAlert")
	}

	cancel()
	sv.StopAll()
}

func TestSupervisor_MetricsTickInvokesCollector(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	b, reg, dist := newHarness(t, probe)
	collector := &countingCollector{}

	sv := New(Config{MetricsCollectionInterval: 10 * time.Millisecond, WorkStealingInterval: time.Hour, LearningInterval: time.Hour, SwarmCoordinationInterval: time.Hour, ResourceMonitoringInterval: time.Hour}, reg, dist, collector, probe, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sv.StartAll(ctx)

	deadline := time.After(time.Second)
	for collector.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("metrics collector was never invoked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	sv.StopAll()
}

func TestSupervisor_SwarmTickRequiresAtLeastTwoAgents(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	b, reg, dist := newHarness(t, probe)
	if _, err := reg.Register(context.Background(), agent.RegisterConfig{Type: "worker"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var calls atomic.Int64
	sv := New(Config{SwarmCoordinationInterval: 10 * time.Millisecond, WorkStealingInterval: time.Hour, LearningInterval: time.Hour, MetricsCollectionInterval: time.Hour, ResourceMonitoringInterval: time.Hour}, reg, dist, nil, probe, b, nil)
	sv.WithSwarmPass(func(ctx context.Context, agents []agent.Agent) {
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	sv.StartAll(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	sv.StopAll()

	if calls.Load() != 0 {
		t.Fatalf("expected swarm pass to be skipped with only one agent, got %d calls", calls.Load())
	}

	if _, err := reg.Register(context.Background(), agent.RegisterConfig{Type: "worker"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx2, cancel2 := context.WithCancel(context.Background())
	sv.StartAll(ctx2)
	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("swarm pass never invoked once a second agent registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel2()
	sv.StopAll()
}

func TestSupervisor_StopAllSendsShutdownAndWaitsForInFlightTicks(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	b, reg, dist := newHarness(t, probe)

	var inFlight sync.WaitGroup
	inFlight.Add(1)
	started := make(chan struct{})
	var once sync.Once

	sv := New(Config{LearningInterval: 5 * time.Millisecond, WorkStealingInterval: time.Hour, SwarmCoordinationInterval: time.Hour, MetricsCollectionInterval: time.Hour, ResourceMonitoringInterval: time.Hour}, reg, dist, nil, probe, b, nil)
	sv.WithLearningPass(func(ctx context.Context, agents []agent.Agent) {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		inFlight.Done()
	})

	ctx := context.Background()
	consumeCtx, consumeCancel := context.WithCancel(ctx)
	defer consumeCancel()
	events, err := b.Consume(consumeCtx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	sv.StartAll(ctx)
	<-started

	stopDone := make(chan struct{})
	go func() {
		sv.StopAll()
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("StopAll did not return after the in-flight tick completed")
	}

	inFlight.Wait()

	sawShutdown := false
	for !sawShutdown {
		select {
		case ev := <-events:
			if _, ok := ev.(bus.Shutdown); ok {
				sawShutdown = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected a Shutdown event on the bus")
		}
	}
}
