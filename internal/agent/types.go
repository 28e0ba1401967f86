// Package agent implements the AgentRegistry (C4): an in-memory,
// concurrency-safe table of worker agents and their execution metrics.
package agent

import "time"

// Kind is the role an agent was registered under.
type Kind string

const (
	KindWorker      Kind = "worker"
	KindCoordinator Kind = "coordinator"
	KindSpecialist  Kind = "specialist"
	KindLearner     Kind = "learner"
)

// Agent is a logical worker identified by a UUID, with metrics attached.
// Owned exclusively by the Registry: mutations require exclusive access to
// the map entry, but the struct itself is returned by value as an
// immutable snapshot to callers.
type Agent struct {
	ID             string
	Name           string
	Kind           Kind
	SpecialistTag  string // set only when Kind == KindSpecialist
	CreatedAt      time.Time
}

// Metrics holds the per-agent execution counters described in the data
// model. Zero value is the correct "never ran a task" state.
type Metrics struct {
	TasksCompleted   int64
	TasksFailed      int64
	TotalExecMs      int64
	AvgExecMs        float64
	LastActivityAt   time.Time
	PerformanceScore float64
}

// recompute derives AvgExecMs and PerformanceScore from the counters,
// following agent_management.rs's performance formula:
// success_rate * min(2.0, 1000 / avg_exec_ms).
func (m *Metrics) recompute() {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		m.AvgExecMs = 0
		m.PerformanceScore = 0
		return
	}
	m.AvgExecMs = float64(m.TotalExecMs) / float64(total)
	successRate := float64(m.TasksCompleted) / float64(total)
	if m.AvgExecMs <= 0 {
		m.PerformanceScore = successRate * 2.0
		return
	}
	speedFactor := 1000.0 / m.AvgExecMs
	if speedFactor > 2.0 {
		speedFactor = 2.0
	}
	m.PerformanceScore = successRate * speedFactor
}
