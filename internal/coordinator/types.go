// Package coordinator implements the TaskDistributor (C4): task intake via
// a work-stealing primary queue with a legacy FIFO fallback, single-task
// execution with verification, and bounded execution history/analytics.
package coordinator

import (
	"strings"
	"time"
)

// Priority is a task's scheduling priority. Unknown strings from external
// payloads default to Medium, never rejected (§6.1).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps a raw string to a Priority, defaulting to Medium for
// anything unrecognized.
func ParsePriority(raw string) Priority {
	switch Priority(strings.ToLower(raw)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityCritical:
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// Capability is a named skill with a minimum proficiency in [0, 1].
type Capability struct {
	Name              string
	MinimumProficiency float64
}

// Status is a task's lifecycle state (§4.4.2 status transitions).
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Task is a unit of work with a priority and capability requirements.
type Task struct {
	ID                   string
	Title                string
	Description          string
	Kind                 string
	Priority             Priority
	RequiredCapabilities []Capability
	CreatedAt            time.Time
}

// TaskMetrics tracks one task's lifecycle, separate from the task body so
// the distributor can update it without touching queue placement.
type TaskMetrics struct {
	CreatedAt         time.Time
	StartedAt         time.Time
	CompletedAt       time.Time
	AssignedAgent     string
	ExecutionAttempts int
	Status            Status
}

// TaskExecutionResult is the outcome of one execute_with_verification call.
// Exactly one of Result / Error is set; Success implies Result is set.
type TaskExecutionResult struct {
	TaskID    string
	AgentID   string
	Success   bool
	ExecMs    int64
	Result    string
	Error     string
	Timestamp time.Time
}

// TaskConfig is the task-submission payload shape from §6.1.
type TaskConfig struct {
	Type                 string             `json:"type"`
	Title                string             `json:"title"`
	Description          string             `json:"description"`
	Priority             string             `json:"priority"`
	RequiredCapabilities []CapabilityConfig `json:"required_capabilities"`
}

// CapabilityConfig is one entry of the required_capabilities array.
// Malformed entries (empty name, out-of-range proficiency) are skipped,
// never rejected.
type CapabilityConfig struct {
	Name               string  `json:"name"`
	MinimumProficiency float64 `json:"minimum_proficiency"`
}
