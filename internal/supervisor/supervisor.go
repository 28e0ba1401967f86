// Package supervisor implements the ProcessSupervisor (C5): a fixed set
// of named periodic background jobs driving the agent registry and task
// distributor, with graceful stop semantics.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/agent"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
)

// Default tick intervals (§4.5).
const (
	DefaultWorkStealingInterval       = 100 * time.Millisecond
	DefaultLearningInterval           = 30 * time.Second
	DefaultSwarmCoordinationInterval  = 5 * time.Second
	DefaultMetricsCollectionInterval  = 10 * time.Second
	DefaultResourceMonitoringInterval = 5 * time.Second

	// resourceAlertThreshold is the usage ceiling above which the resource
	// monitoring tick publishes a ResourceAlert.
	resourceAlertThreshold = 0.9
)

// Config holds the supervisor's tick intervals; zero fields fall back to
// the spec's documented defaults.
type Config struct {
	WorkStealingInterval       time.Duration
	LearningInterval           time.Duration
	SwarmCoordinationInterval  time.Duration
	MetricsCollectionInterval  time.Duration
	ResourceMonitoringInterval time.Duration

	// ResourceAlertThreshold is the usage ceiling above which the
	// resource-monitoring tick publishes a ResourceAlert. Zero falls back
	// to resourceAlertThreshold.
	ResourceAlertThreshold float64
}

func (c Config) withDefaults() Config {
	if c.WorkStealingInterval <= 0 {
		c.WorkStealingInterval = DefaultWorkStealingInterval
	}
	if c.LearningInterval <= 0 {
		c.LearningInterval = DefaultLearningInterval
	}
	if c.SwarmCoordinationInterval <= 0 {
		c.SwarmCoordinationInterval = DefaultSwarmCoordinationInterval
	}
	if c.MetricsCollectionInterval <= 0 {
		c.MetricsCollectionInterval = DefaultMetricsCollectionInterval
	}
	if c.ResourceMonitoringInterval <= 0 {
		c.ResourceMonitoringInterval = DefaultResourceMonitoringInterval
	}
	if c.ResourceAlertThreshold <= 0 {
		c.ResourceAlertThreshold = resourceAlertThreshold
	}
	return c
}

// MetricsCollector performs the periodic metrics-aggregation pass; its
// internals are out of scope (§4.5 calls this opaque).
type MetricsCollector interface {
	Collect(ctx context.Context) error
}

// LearningPass and SwarmPass are the opaque per-tick hooks the spec
// leaves unspecified ("trigger an agent-learning pass (opaque here)").
// A nil hook makes its tick a no-op beyond the agent-count gate.
type LearningPass func(ctx context.Context, agents []agent.Agent)
type SwarmPass func(ctx context.Context, agents []agent.Agent)

// Supervisor is the ProcessSupervisor (C5). It is constructed explicitly
// and owned by whatever assembles the coordinator; it is not a
// process-wide singleton.
type Supervisor struct {
	cfg         Config
	registry    *agent.Registry
	distributor *coordinator.Distributor
	metrics     MetricsCollector
	probe       resourceprobe.Probe
	bus         *bus.Bus
	logger      *slog.Logger

	learning LearningPass
	swarm    SwarmPass
	capFn    coordinator.AgentCapabilities

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Supervisor over the given collaborators. metrics and probe
// may be nil, in which case their ticks become no-ops for that concern.
func New(cfg Config, registry *agent.Registry, distributor *coordinator.Distributor, metrics MetricsCollector, probe resourceprobe.Probe, b *bus.Bus, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:         cfg.withDefaults(),
		registry:    registry,
		distributor: distributor,
		metrics:     metrics,
		probe:       probe,
		bus:         b,
		logger:      logger,
	}
}

// WithLearningPass installs the opaque learning hook.
func (s *Supervisor) WithLearningPass(fn LearningPass) *Supervisor {
	s.learning = fn
	return s
}

// WithSwarmPass installs the opaque swarm-coordination hook.
func (s *Supervisor) WithSwarmPass(fn SwarmPass) *Supervisor {
	s.swarm = fn
	return s
}

// WithCapabilities installs the capability-matching function used by the
// work-stealing tick's call into Distribute.
func (s *Supervisor) WithCapabilities(fn coordinator.AgentCapabilities) *Supervisor {
	s.capFn = fn
	return s
}

type namedTick struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
}

// StartAll spawns the five named periodic ticks described in §4.5. Each
// runs in its own goroutine on its own ticker; stopping is cooperative via
// ctx cancellation (see StopAll).
func (s *Supervisor) StartAll(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	ticks := []namedTick{
		{"work_stealing", s.cfg.WorkStealingInterval, s.tickWorkStealing},
		{"learning", s.cfg.LearningInterval, s.tickLearning},
		{"swarm_coordination", s.cfg.SwarmCoordinationInterval, s.tickSwarm},
		{"metrics_collection", s.cfg.MetricsCollectionInterval, s.tickMetrics},
		{"resource_monitoring", s.cfg.ResourceMonitoringInterval, s.tickResourceMonitoring},
	}
	for _, t := range ticks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	if s.logger != nil {
		s.logger.Info("supervisor_started",
			slog.Duration("work_stealing_interval", s.cfg.WorkStealingInterval),
			slog.Duration("learning_interval", s.cfg.LearningInterval),
			slog.Duration("swarm_coordination_interval", s.cfg.SwarmCoordinationInterval),
			slog.Duration("metrics_collection_interval", s.cfg.MetricsCollectionInterval),
			slog.Duration("resource_monitoring_interval", s.cfg.ResourceMonitoringInterval),
		)
	}
}

func (s *Supervisor) loop(ctx context.Context, t namedTick) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fn(ctx)
		}
	}
}

func (s *Supervisor) tickWorkStealing(ctx context.Context) {
	agents := s.registry.List()
	if len(agents) == 0 {
		return
	}
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	s.distributor.Distribute(ctx, ids, s.capFn)
}

func (s *Supervisor) tickLearning(ctx context.Context) {
	if s.learning == nil {
		return
	}
	s.learning(ctx, s.registry.List())
}

func (s *Supervisor) tickSwarm(ctx context.Context) {
	if s.swarm == nil {
		return
	}
	agents := s.registry.List()
	if len(agents) < 2 {
		return
	}
	s.swarm(ctx, agents)
}

func (s *Supervisor) tickMetrics(ctx context.Context) {
	if s.probe != nil {
		if _, err := s.probe.Sample(ctx); err != nil && s.logger != nil {
			s.logger.Warn("metrics_probe_refresh_failed", slog.String("error", err.Error()))
		}
	}
	if s.metrics != nil {
		if err := s.metrics.Collect(ctx); err != nil && s.logger != nil {
			s.logger.Warn("metrics_collection_failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Supervisor) tickResourceMonitoring(ctx context.Context) {
	if s.probe == nil {
		return
	}
	sample, err := s.probe.Sample(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("resource_probe_sample_failed", slog.String("error", err.Error()))
		}
		return
	}
	if s.bus == nil {
		return
	}
	if sample.CPUUsage > s.cfg.ResourceAlertThreshold {
		s.bus.Publish(bus.ResourceAlert{Resource: "cpu", Usage: sample.CPUUsage})
	}
	if sample.MemoryUsage > s.cfg.ResourceAlertThreshold {
		s.bus.Publish(bus.ResourceAlert{Resource: "memory", Usage: sample.MemoryUsage})
	}
}

// StopAll sends a Shutdown event onto the bus, then cancels every spawned
// tick and waits for in-flight iterations to finish (§4.5, §5: "an
// in-flight tick is allowed to complete its current step but not start a
// new one").
func (s *Supervisor) StopAll() {
	if s.bus != nil {
		s.bus.Publish(bus.Shutdown{})
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.logger != nil {
		s.logger.Info("supervisor_stopped")
	}
}
