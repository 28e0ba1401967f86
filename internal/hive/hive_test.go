package hive

import (
	"context"
	"testing"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/agent"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/config"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/streaming"
)

type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, task coordinator.Task) (string, error) {
	return "ok:" + task.ID, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Supervisor.WorkStealingIntervalMs = 5
	cfg.Supervisor.LearningIntervalSeconds = 3600
	cfg.Supervisor.SwarmCoordinationIntervalSec = 3600
	cfg.Supervisor.MetricsCollectionIntervalSec = 3600
	cfg.Supervisor.ResourceMonitoringIntervalSec = 3600
	cfg.Distributor.PrimaryCapacity = 1
	return cfg
}

func TestNew_WiresCollaboratorsTogether(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	h := New(testConfig(), echoExecutor{}, probe, nil, nil, nil)

	if h.Bus == nil || h.Registry == nil || h.Distributor == nil || h.Flow == nil || h.Supervisor == nil {
		t.Fatal("expected every collaborator to be non-nil")
	}
}

func TestHive_StartDistributesQueuedTasksAndStopDrains(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	h := New(testConfig(), echoExecutor{}, probe, nil, nil, nil)

	fillerID := h.Distributor.Create(coordinator.TaskConfig{Title: "filler"})
	_ = fillerID
	taskID := h.Distributor.Create(coordinator.TaskConfig{Title: "real"})
	if !h.Distributor.LegacyQueueContains(taskID) {
		t.Fatal("expected second task to overflow into the legacy queue")
	}

	if _, err := h.Registry.Register(context.Background(), agent.RegisterConfig{Type: "worker"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	h.Start(context.Background())

	deadline := time.After(time.Second)
	for h.Distributor.LegacyQueueContains(taskID) {
		select {
		case <-deadline:
			t.Fatal("work-stealing tick never drained the legacy queue")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := h.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestHive_NewStreamingSessionRunsToCompletion(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	h := New(testConfig(), echoExecutor{}, probe, nil, nil, nil)

	sess, err := h.NewStreamingSession(context.Background(), streaming.PriorityNormal)
	if err != nil {
		t.Fatalf("NewStreamingSession: %v", err)
	}

	chunks, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	chunkCount := 0
	produce := func(ctx context.Context) ([]byte, bool, error) {
		chunkCount++
		if chunkCount > 2 {
			return nil, true, nil
		}
		return []byte("chunk"), false, nil
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(context.Background(), "demo", produce) }()

	var sawFinal bool
	deadline := time.After(time.Second)
	for !sawFinal {
		select {
		case c := <-chunks:
			if c.Kind == streaming.ChunkFinal {
				sawFinal = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for a final chunk")
		}
	}

	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestHive_MetricsSnapshotReflectsDispatchedMergeEvents(t *testing.T) {
	probe := resourceprobe.StaticProbe{Fixed: resourceprobe.Sample{CPUUsage: 0.1, MemoryUsage: 0.1}}
	h := New(testConfig(), echoExecutor{}, probe, nil, nil, nil)

	h.Start(context.Background())
	defer h.Stop(2 * time.Second)

	h.Bus.Publish(bus.MetricsUpdate{Payload: map[string]any{"queue_depth": 3}})

	deadline := time.After(time.Second)
	for {
		snap := h.MetricsSnapshot()
		if v, ok := snap["queue_depth"]; ok {
			if v != 3 {
				t.Fatalf("queue_depth = %v, want 3", v)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("metrics snapshot never observed the merged payload")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
