// Package hive wires the substrate's components (CoordinationBus,
// AgentRegistry, TaskDistributor, FlowController, ProcessSupervisor) into
// one explicitly constructed aggregate. There is no process-wide
// singleton: every collaborator is built by New and owned by the Hive
// value the caller holds.
package hive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/agent"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/config"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/streaming"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/supervisor"
)

// Hive is the assembled substrate: every component named in §4, built
// once and handed to the caller. Start/Stop bound the lifetime of the
// supervisor's background ticks and the bus dispatcher so no goroutine
// outlives the Hive that spawned it.
type Hive struct {
	Bus         *bus.Bus
	Registry    *agent.Registry
	Distributor *coordinator.Distributor
	Flow        *streaming.FlowController
	Supervisor  *supervisor.Supervisor

	cfg        config.Config
	logger     *slog.Logger
	dispatcher *bus.Dispatcher
	sink       *dispatchSink
	metrics    *hiveotel.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a Hive from cfg. executor runs tasks admitted by the
// distributor; probe samples host resource utilization for the registry's
// admission gate and the supervisor's monitoring tick; metrics, if
// non-nil, is invoked by the supervisor's metrics_collection tick.
// otelMetrics, if non-nil, receives the Hive's OTel instrument writes.
func New(cfg config.Config, executor coordinator.AgentExecutor, probe resourceprobe.Probe, otelMetrics *hiveotel.Metrics, collector supervisor.MetricsCollector, logger *slog.Logger) *Hive {
	b := bus.New()
	registry := agent.NewRegistry(b, probe, logger).WithMetrics(otelMetrics)
	distributor := coordinator.NewDistributor(coordinator.Config{
		PrimaryCapacity:          cfg.Distributor.PrimaryCapacity,
		ExecutionHistoryCapacity: cfg.Distributor.ExecutionHistoryCapacity,
	}, b, executor, registry, logger).WithMetrics(otelMetrics)
	flow := streaming.NewFlowController(cfg.FlowController.MaxConcurrent).WithMetrics(otelMetrics)

	sup := supervisor.New(supervisor.Config{
		WorkStealingInterval:       cfg.Supervisor.WorkStealingInterval(),
		LearningInterval:           cfg.Supervisor.LearningInterval(),
		SwarmCoordinationInterval:  cfg.Supervisor.SwarmCoordinationInterval(),
		MetricsCollectionInterval:  cfg.Supervisor.MetricsCollectionInterval(),
		ResourceMonitoringInterval: cfg.Supervisor.ResourceMonitoringInterval(),
		ResourceAlertThreshold:     cfg.Supervisor.ResourceAlertThreshold,
	}, registry, distributor, collector, probe, b, logger)

	sink := newDispatchSink(logger)

	return &Hive{
		Bus:         b,
		Registry:    registry,
		Distributor: distributor,
		Flow:        flow,
		Supervisor:  sup,
		cfg:         cfg,
		logger:      logger,
		dispatcher:  bus.NewDispatcher(b, sink, logger),
		sink:        sink,
		metrics:     otelMetrics,
	}
}

// WithLearningPass installs the supervisor's opaque learning hook and
// returns the Hive for chaining.
func (h *Hive) WithLearningPass(fn supervisor.LearningPass) *Hive {
	h.Supervisor.WithLearningPass(fn)
	return h
}

// WithSwarmPass installs the supervisor's opaque swarm-coordination hook
// and returns the Hive for chaining.
func (h *Hive) WithSwarmPass(fn supervisor.SwarmPass) *Hive {
	h.Supervisor.WithSwarmPass(fn)
	return h
}

// WithCapabilities installs the capability-matching function the
// work-stealing tick uses when assigning tasks, and returns the Hive for
// chaining.
func (h *Hive) WithCapabilities(fn coordinator.AgentCapabilities) *Hive {
	h.Supervisor.WithCapabilities(fn)
	return h
}

// Start launches the bus dispatcher and the supervisor's five named
// ticks, all bound to ctx. Both are joined by Stop.
func (h *Hive) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.dispatcher.Run(ctx); err != nil && h.logger != nil {
			h.logger.Error("dispatcher_stopped", slog.String("error", err.Error()))
		}
	}()

	h.Supervisor.StartAll(ctx)

	if h.logger != nil {
		h.logger.Info("hive_started")
	}
}

// Stop publishes a Shutdown event, cancels the Hive's context, and waits
// up to timeout for the supervisor and dispatcher to drain. A timeout of
// zero or less waits indefinitely.
func (h *Hive) Stop(timeout time.Duration) error {
	h.Supervisor.StopAll()
	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		if h.logger != nil {
			h.logger.Warn("hive_stop_timed_out", slog.Duration("timeout", timeout))
		}
		return fmt.Errorf("hive: stop timed out after %s", timeout)
	}
}

// NewStreamingSession builds a streaming.Session admitted through the
// Hive's FlowController at the given priority, ready to Run against a
// fresh stream id. Callers release no resources directly: Session.Run
// guarantees the flow-control permit is released on return, and Cancel
// releases it on early termination.
func (h *Hive) NewStreamingSession(ctx context.Context, priority streaming.StreamPriority) (*streaming.Session, error) {
	permit, err := h.Flow.Acquire(ctx, priority)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	handle := streaming.NewStreamHandle(id)
	bp := streaming.NewBackpressureController(h.cfg.Backpressure.HighWatermark, h.cfg.Backpressure.LowWatermark)
	limits := streaming.ResourceLimits{
		MaxBytesPerStream:   h.cfg.Streaming.MaxBytesPerStream,
		MaxDuration:         h.cfg.Streaming.MaxDuration(),
		BufferHighWatermark: h.cfg.Backpressure.HighWatermark,
		BufferLowWatermark:  h.cfg.Backpressure.LowWatermark,
	}
	return streaming.NewSession(id, handle, permit, bp, limits).WithMetrics(h.metrics), nil
}

// MetricsSnapshot returns the last out-of-band metrics payload merged via
// a bus.MetricsUpdate event.
func (h *Hive) MetricsSnapshot() map[string]any {
	return h.sink.Snapshot()
}
