package hive

import (
	"log/slog"
	"sync"
)

// dispatchSink is the concrete bus.MetricsSink the Hive installs on its
// Dispatcher. The registry and distributor already update their own state
// synchronously before publishing (AgentRegistered/AgentRemoved,
// TaskCompleted) and already record the OTel instruments that matter for
// those events at the point of occurrence (Registry.UpdateMetrics,
// Distributor.ExecuteWithVerification); this sink only logs the
// already-applied event for diagnostics and folds out-of-band metrics
// payloads into a last-seen snapshot for MetricsSnapshot.
type dispatchSink struct {
	mu       sync.Mutex
	logger   *slog.Logger
	snapshot map[string]any
}

func newDispatchSink(logger *slog.Logger) *dispatchSink {
	return &dispatchSink{logger: logger, snapshot: make(map[string]any)}
}

func (s *dispatchSink) AgentCountDelta(delta int) {
	if s.logger != nil {
		s.logger.Debug("agent_count_delta", slog.Int("delta", delta))
	}
}

func (s *dispatchSink) RecordTaskCompletion(taskID, agentID string, success bool) {
	if s.logger != nil {
		s.logger.Debug("task_completion_observed",
			slog.String("task_id", taskID),
			slog.String("agent_id", agentID),
			slog.Bool("success", success),
		)
	}
}

func (s *dispatchSink) MergeMetricsSnapshot(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range payload {
		s.snapshot[k] = v
	}
}

// Snapshot returns a copy of the last-merged out-of-band metrics payload.
func (s *dispatchSink) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}
