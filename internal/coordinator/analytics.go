package coordinator

// QueueStatus mirrors the status() contract in §4.4.2.
type QueueStatus struct {
	LegacyQueueSize       int
	WorkStealingQueueSize int
	TaskStatusCounts      map[Status]int
	TotalTasks            int
}

// Status returns a snapshot of queue depths and task status counts.
// Calling it twice in succession without intervening events yields
// identical snapshots (idempotence law, §8).
func (d *Distributor) Status() QueueStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[Status]int)
	for _, m := range d.taskMetrics {
		counts[m.Status]++
	}

	return QueueStatus{
		LegacyQueueSize:       d.secondary.Len(),
		WorkStealingQueueSize: d.primary.Len(),
		TaskStatusCounts:      counts,
		TotalTasks:            len(d.tasks),
	}
}

// TaskDistribution breaks down executions by agent and by hour-of-day.
type TaskDistribution struct {
	TasksPerAgent     map[string]int
	HourlyDistribution map[int]int
}

// Analytics summarizes the retained execution-history window, per the
// analytics() contract in §4.4.2.
type Analytics struct {
	TotalExecutions        int
	SuccessRate            float64
	AvgExecMs              float64
	RecentPerformanceWindow []TaskExecutionResult
	TaskDistribution       TaskDistribution
}

// Analytics computes aggregate statistics over the retained execution
// history (bounded to 1000 entries by construction).
func (d *Distributor) Analytics() Analytics {
	entries := d.history.Snapshot()

	var succeeded int
	var totalExecMs int64
	tasksPerAgent := make(map[string]int)
	hourly := make(map[int]int)

	for _, e := range entries {
		if e.Success {
			succeeded++
		}
		totalExecMs += e.ExecMs
		tasksPerAgent[e.AgentID]++
		hourly[e.Timestamp.Hour()]++
	}

	total := len(entries)
	a := Analytics{
		TotalExecutions: total,
		TaskDistribution: TaskDistribution{
			TasksPerAgent:      tasksPerAgent,
			HourlyDistribution: hourly,
		},
	}
	if total > 0 {
		a.SuccessRate = float64(succeeded) / float64(total)
		a.AvgExecMs = float64(totalExecMs) / float64(total)
	}

	windowStart := 0
	if total > 100 {
		windowStart = total - 100
	}
	a.RecentPerformanceWindow = append([]TaskExecutionResult(nil), entries[windowStart:]...)

	return a
}
