package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/shared"
)

// AgentExecutor is the opaque per-agent execution boundary described in
// §9 ("dynamic dispatch over executors"): one interface, one
// implementation per concrete executor kind, no runtime reflection.
type AgentExecutor interface {
	Execute(ctx context.Context, task Task) (result string, err error)
}

// MetricsRecorder is notified of each task's outcome so the AgentRegistry
// can update its per-agent counters without the distributor importing the
// agent package directly.
type MetricsRecorder interface {
	UpdateMetrics(agentID string, execMs int64, success bool) error
}

// Distributor is the TaskDistributor (C4): task intake across a
// work-stealing primary queue with a legacy FIFO fallback, single-task
// execution with verification, and bounded execution history.
type Distributor struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	taskMetrics map[string]*TaskMetrics

	primary   *workStealingQueue
	secondary *legacyQueue
	history   *executionHistory

	bus      *bus.Bus
	executor AgentExecutor
	recorder MetricsRecorder
	logger   *slog.Logger
	metrics  *hiveotel.Metrics
}

// Config configures the distributor's bounded resources.
type Config struct {
	PrimaryCapacity          int
	ExecutionHistoryCapacity int
}

// NewDistributor builds a Distributor. executor runs admitted tasks;
// recorder (typically an *agent.Registry) receives per-task outcome
// updates; bus carries TaskCompleted events.
func NewDistributor(cfg Config, b *bus.Bus, executor AgentExecutor, recorder MetricsRecorder, logger *slog.Logger) *Distributor {
	return &Distributor{
		tasks:       make(map[string]*Task),
		taskMetrics: make(map[string]*TaskMetrics),
		primary:     newWorkStealingQueue(cfg.PrimaryCapacity),
		secondary:   newLegacyQueue(),
		history:     newExecutionHistory(cfg.ExecutionHistoryCapacity),
		bus:         b,
		executor:    executor,
		recorder:    recorder,
		logger:      logger,
	}
}

// WithMetrics attaches the OTel instrument set this distributor records
// task duration and execution-history size against. A nil m leaves
// recording disabled.
func (d *Distributor) WithMetrics(m *hiveotel.Metrics) *Distributor {
	d.metrics = m
	return d
}

func sanitizeCapabilities(raw []CapabilityConfig) []Capability {
	out := make([]Capability, 0, len(raw))
	for _, c := range raw {
		if c.Name == "" || c.MinimumProficiency < 0 || c.MinimumProficiency > 1 {
			continue
		}
		out = append(out, Capability{Name: c.Name, MinimumProficiency: c.MinimumProficiency})
	}
	return out
}

// Create parses cfg into a Task, initializes its TaskMetrics, and submits
// it to the primary queue; on submission failure it falls back to the
// legacy queue. Returns the new task's id.
func (d *Distributor) Create(cfg TaskConfig) string {
	title := cfg.Title
	if title == "" {
		title = "Untitled Task"
	}

	task := &Task{
		ID:                   uuid.NewString(),
		Title:                title,
		Description:          cfg.Description,
		Kind:                 cfg.Type,
		Priority:             ParsePriority(cfg.Priority),
		RequiredCapabilities: sanitizeCapabilities(cfg.RequiredCapabilities),
		CreatedAt:            time.Now(),
	}
	metrics := &TaskMetrics{CreatedAt: task.CreatedAt, Status: StatusPending}

	d.mu.Lock()
	d.tasks[task.ID] = task
	d.taskMetrics[task.ID] = metrics
	d.mu.Unlock()

	if err := d.primary.Push(task.ID); err != nil {
		d.secondary.Push(task.ID)
		if d.logger != nil {
			d.logger.Warn("task_fell_back_to_legacy_queue", slog.String("task_id", task.ID), slog.String("reason", err.Error()))
		}
	}

	return task.ID
}

// AgentCapabilities optionally supplies an agent's declared capabilities
// for preference matching in Distribute. A nil provider disables
// preference matching and falls back to plain round-robin.
type AgentCapabilities func(agentID string) []Capability

// Distribute drains up to min(len(secondary), len(agentIDs)) tasks from
// the legacy queue and assigns each to an agent, spawning an asynchronous
// execution for it. An empty agent list is a no-op. When capFn is
// non-nil, assignment prefers an agent whose declared capabilities meet
// the task's requirements, falling back to round-robin when none match.
func (d *Distributor) Distribute(ctx context.Context, agentIDs []string, capFn AgentCapabilities) {
	if len(agentIDs) == 0 {
		return
	}

	n := d.secondary.Len()
	if n > len(agentIDs) {
		n = len(agentIDs)
	}

	for i := 0; i < n; i++ {
		taskID, ok := d.secondary.PopFront()
		if !ok {
			return
		}

		agentID := d.pickAgent(taskID, agentIDs, i, capFn)

		d.mu.Lock()
		if m, ok := d.taskMetrics[taskID]; ok {
			m.Status = StatusAssigned
			m.AssignedAgent = agentID
		}
		d.mu.Unlock()

		go func(taskID, agentID string) {
			_, _ = d.ExecuteWithVerification(ctx, taskID, agentID)
		}(taskID, agentID)
	}
}

func (d *Distributor) pickAgent(taskID string, agentIDs []string, roundRobinIdx int, capFn AgentCapabilities) string {
	d.mu.RLock()
	task, ok := d.tasks[taskID]
	d.mu.RUnlock()

	if ok && capFn != nil && len(task.RequiredCapabilities) > 0 {
		for _, candidate := range agentIDs {
			if MatchesCapabilities(capFn(candidate), task.RequiredCapabilities) {
				return candidate
			}
		}
	}
	return agentIDs[roundRobinIdx%len(agentIDs)]
}

// ExecuteWithVerification is the authoritative single-task executor
// (§4.4.2): it locates the task in either queue, runs it via the
// configured AgentExecutor, records the outcome, and publishes exactly
// one TaskCompleted event regardless of success.
func (d *Distributor) ExecuteWithVerification(ctx context.Context, taskID, agentID string) (TaskExecutionResult, error) {
	d.mu.Lock()
	task, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return TaskExecutionResult{}, &hiveerrors.TaskNotFound{ID: taskID}
	}
	d.mu.Unlock()

	if !d.primary.Remove(taskID) {
		d.secondary.Remove(taskID)
	}

	d.mu.Lock()
	m := d.taskMetrics[taskID]
	m.StartedAt = time.Now()
	m.AssignedAgent = agentID
	m.Status = StatusRunning
	m.ExecutionAttempts++
	d.mu.Unlock()

	execCtx := shared.WithAgentID(shared.WithTaskID(ctx, taskID), agentID)

	start := time.Now()
	output, execErr := d.executor.Execute(execCtx, *task)
	execMs := time.Since(start).Milliseconds()

	result := TaskExecutionResult{
		TaskID:    taskID,
		AgentID:   agentID,
		ExecMs:    execMs,
		Timestamp: time.Now(),
	}

	d.mu.Lock()
	if execErr != nil {
		m.Status = StatusFailed
		result.Success = false
		result.Error = execErr.Error()
	} else {
		m.Status = StatusCompleted
		m.CompletedAt = result.Timestamp
		result.Success = true
		result.Result = output
	}
	d.mu.Unlock()

	if d.metrics != nil && d.metrics.TaskDuration != nil {
		d.metrics.TaskDuration.Record(execCtx, float64(execMs),
			metric.WithAttributes(hiveotel.AttrAgentID.String(agentID)))
	}

	evicted := d.history.Append(result)
	if d.metrics != nil && d.metrics.ExecutionHistorySize != nil {
		delta := int64(1)
		if evicted {
			delta = 0
		}
		d.metrics.ExecutionHistorySize.Add(execCtx, delta)
	}

	if d.recorder != nil {
		_ = d.recorder.UpdateMetrics(agentID, execMs, result.Success)
	}
	if d.bus != nil {
		d.bus.Publish(bus.TaskCompleted{TaskID: taskID, AgentID: agentID, Success: result.Success})
	}

	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

// TaskMetricsFor returns a snapshot of a task's metrics, or false if the
// task is unknown.
func (d *Distributor) TaskMetricsFor(taskID string) (TaskMetrics, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.taskMetrics[taskID]
	if !ok {
		return TaskMetrics{}, false
	}
	return *m, true
}

// LegacyQueueContains reports whether taskID is still sitting in the
// legacy fallback queue (used by tests asserting the fallback path).
func (d *Distributor) LegacyQueueContains(taskID string) bool {
	return d.secondary.Contains(taskID)
}
