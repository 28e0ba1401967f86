package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
)

// cpuAdmissionGate is the utilization ceiling above which new agent
// registration is refused, per §4.4.1.
const cpuAdmissionGate = 0.9

// RegisterConfig is the agent-registration payload shape from §6.2.
type RegisterConfig struct {
	Type string `json:"type"` // "worker" | "coordinator" | "specialist" | "learner"
	Name string `json:"name"` // optional; default "<Type>"
	Tag  string `json:"tag"`  // optional, meaningful only when Type == "specialist"
}

// Registry is the AgentRegistry (C4): an in-memory table of agents and
// their metrics, safe for many concurrent readers and short exclusive
// writers. Not a singleton — constructed explicitly and owned by the Hive.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	metrics map[string]*Metrics
	bus     *bus.Bus
	probe   resourceprobe.Probe
	logger  *slog.Logger

	otelMetrics *hiveotel.Metrics
}

// WithMetrics attaches the OTel instrument set this registry records
// per-agent performance scores against. A nil m leaves recording disabled.
func (r *Registry) WithMetrics(m *hiveotel.Metrics) *Registry {
	r.otelMetrics = m
	return r
}

// NewRegistry builds an empty Registry. probe supplies the CPU sample the
// admission gate checks; bus receives AgentRegistered/AgentRemoved events.
func NewRegistry(b *bus.Bus, probe resourceprobe.Probe, logger *slog.Logger) *Registry {
	return &Registry{
		agents:  make(map[string]*Agent),
		metrics: make(map[string]*Metrics),
		bus:     b,
		probe:   probe,
		logger:  logger,
	}
}

func parseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(raw)) {
	case KindWorker:
		return KindWorker, true
	case KindCoordinator:
		return KindCoordinator, true
	case KindSpecialist:
		return KindSpecialist, true
	case KindLearner:
		return KindLearner, true
	default:
		return "", false
	}
}

func defaultName(k Kind) string {
	s := string(k)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Register validates cfg, checks the CPU admission gate, and inserts a new
// agent with zeroed metrics. Fails with *hiveerrors.ValidationError if cfg
// is malformed, or *hiveerrors.ResourceExhausted if the CPU gate trips.
func (r *Registry) Register(ctx context.Context, cfg RegisterConfig) (Agent, error) {
	if cfg.Type == "" {
		return Agent{}, &hiveerrors.ValidationError{Field: "type", Reason: "missing"}
	}
	kind, ok := parseKind(cfg.Type)
	if !ok {
		return Agent{}, &hiveerrors.ValidationError{Field: "type", Reason: "unknown agent type " + cfg.Type}
	}

	if r.probe != nil {
		sample, err := r.probe.Sample(ctx)
		if err != nil {
			return Agent{}, &hiveerrors.Internal{Message: "resource probe sample failed: " + err.Error()}
		}
		if sample.CPUUsage > cpuAdmissionGate {
			return Agent{}, &hiveerrors.ResourceExhausted{Resource: "CPU capacity for new agent"}
		}
	}

	name := cfg.Name
	if name == "" {
		name = defaultName(kind)
	}

	a := &Agent{
		ID:            uuid.NewString(),
		Name:          name,
		Kind:          kind,
		SpecialistTag: cfg.Tag,
		CreatedAt:     time.Now(),
	}

	r.mu.Lock()
	r.agents[a.ID] = a
	r.metrics[a.ID] = &Metrics{}
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(bus.AgentRegistered{ID: a.ID})
	}
	if r.logger != nil {
		r.logger.Info("agent_registered", slog.String("agent_id", a.ID), slog.String("kind", string(kind)))
	}

	return *a, nil
}

// Remove deletes an agent and its metrics. Fails with
// *hiveerrors.AgentNotFound if id is unknown.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	_, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return &hiveerrors.AgentNotFound{ID: id}
	}
	delete(r.agents, id)
	delete(r.metrics, id)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(bus.AgentRemoved{ID: id})
	}
	if r.logger != nil {
		r.logger.Info("agent_removed", slog.String("agent_id", id))
	}
	return nil
}

// Get returns a snapshot of the agent, or false if unknown.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// List returns snapshots of every registered agent.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}

// MetricsFor returns a snapshot of the agent's metrics, or false if unknown.
func (r *Registry) MetricsFor(id string) (Metrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[id]
	if !ok {
		return Metrics{}, false
	}
	return *m, true
}

// UpdateMetrics records the outcome of one task execution against agent
// id, recomputing AvgExecMs and PerformanceScore. Fails with
// *hiveerrors.AgentNotFound if id is unknown.
func (r *Registry) UpdateMetrics(id string, execMs int64, success bool) error {
	r.mu.Lock()
	m, ok := r.metrics[id]
	if !ok {
		r.mu.Unlock()
		return &hiveerrors.AgentNotFound{ID: id}
	}
	if success {
		m.TasksCompleted++
	} else {
		m.TasksFailed++
	}
	m.TotalExecMs += execMs
	m.LastActivityAt = time.Now()
	m.recompute()
	score := m.PerformanceScore
	r.mu.Unlock()

	if r.otelMetrics != nil && r.otelMetrics.AgentPerformance != nil {
		r.otelMetrics.AgentPerformance.Record(context.Background(), score,
			metric.WithAttributes(hiveotel.AttrAgentID.String(id)))
	}
	return nil
}

// Count returns the number of currently registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
