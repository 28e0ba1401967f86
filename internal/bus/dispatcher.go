package bus

import (
	"context"
	"log/slog"
)

// MetricsSink receives the counters a Dispatcher derives from coordination
// events. AgentRegistry and TaskDistributor implementations satisfy this
// with their own bookkeeping; tests can supply a recording stub.
type MetricsSink interface {
	AgentCountDelta(delta int)
	RecordTaskCompletion(taskID, agentID string, success bool)
	MergeMetricsSnapshot(payload map[string]any)
}

// Dispatcher is the CoordinationBus's one dedicated consumer: it takes
// ownership of the bus's receive side and pattern-matches each event to
// the handling described in the component design.
type Dispatcher struct {
	bus    *Bus
	sink   MetricsSink
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher over bus, forwarding agent/task
// counters to sink and logging resource alerts.
func NewDispatcher(bus *Bus, sink MetricsSink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, sink: sink, logger: logger}
}

// Run takes ownership of the bus's consumer and blocks until a Shutdown
// event drains through or ctx is canceled. It returns the error from
// Consume if the bus already has a consumer.
func (d *Dispatcher) Run(ctx context.Context) error {
	events, err := d.bus.Consume(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		d.handle(ev)
	}
	return nil
}

func (d *Dispatcher) handle(ev CoordinationEvent) {
	switch e := ev.(type) {
	case AgentRegistered:
		d.sink.AgentCountDelta(1)
	case AgentRemoved:
		d.sink.AgentCountDelta(-1)
	case TaskCompleted:
		d.sink.RecordTaskCompletion(e.TaskID, e.AgentID, e.Success)
	case MetricsUpdate:
		d.sink.MergeMetricsSnapshot(e.Payload)
	case ResourceAlert:
		if d.logger != nil {
			d.logger.Warn("resource_alert",
				slog.String("resource", e.Resource),
				slog.Float64("usage", e.Usage),
			)
		}
	case Shutdown:
		// loop exits naturally once the bus closes the channel after this event
	}
}
