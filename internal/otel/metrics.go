package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the substrate's OpenTelemetry instruments (§6.6): flow
// admission/rejection counters by priority, stream byte/chunk counters,
// backpressure pause events, task execution duration, agent performance
// score, and execution-history size.
type Metrics struct {
	FlowAdmissions      metric.Int64Counter
	FlowRejections      metric.Int64Counter
	FlowQueueDepth      metric.Int64UpDownCounter
	StreamBytesTotal    metric.Int64Counter
	StreamChunksTotal   metric.Int64Counter
	BackpressurePauses  metric.Int64Counter
	TaskDuration        metric.Float64Histogram
	AgentPerformance    metric.Float64Histogram
	ExecutionHistorySize metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.FlowAdmissions, err = meter.Int64Counter("hive.flow.admissions",
		metric.WithDescription("Flow controller permit admissions, by priority"),
	)
	if err != nil {
		return nil, err
	}

	m.FlowRejections, err = meter.Int64Counter("hive.flow.rejections",
		metric.WithDescription("Flow controller permit acquisitions that timed out, by priority"),
	)
	if err != nil {
		return nil, err
	}

	m.FlowQueueDepth, err = meter.Int64UpDownCounter("hive.flow.queue_depth",
		metric.WithDescription("Current depth of the flow controller's advisory queue"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamBytesTotal, err = meter.Int64Counter("hive.stream.bytes",
		metric.WithDescription("Total bytes delivered across all streaming sessions"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamChunksTotal, err = meter.Int64Counter("hive.stream.chunks",
		metric.WithDescription("Total chunks broadcast across all streaming sessions"),
	)
	if err != nil {
		return nil, err
	}

	m.BackpressurePauses, err = meter.Int64Counter("hive.backpressure.pauses",
		metric.WithDescription("Backpressure controller pause transitions"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("hive.task.duration",
		metric.WithDescription("Task execution duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.AgentPerformance, err = meter.Float64Histogram("hive.agent.performance_score",
		metric.WithDescription("Agent performance score (success_rate * min(2.0, 1000/avg_exec_ms))"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutionHistorySize, err = meter.Int64UpDownCounter("hive.distributor.execution_history_size",
		metric.WithDescription("Current size of the bounded execution history"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
