package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
)

// StreamPriority is the admission priority for a stream slot request.
// Distinct from coordinator.Priority: the data model names this set
// separately in §4.2 (Critical/High/Normal/Low, no "Medium").
type StreamPriority string

const (
	PriorityCritical StreamPriority = "critical"
	PriorityHigh     StreamPriority = "high"
	PriorityNormal   StreamPriority = "normal"
	PriorityLow      StreamPriority = "low"
)

var priorityOrder = []StreamPriority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

var priorityTimeouts = map[StreamPriority]time.Duration{
	PriorityCritical: 30 * time.Second,
	PriorityHigh:      15 * time.Second,
	PriorityNormal:    5 * time.Second,
	PriorityLow:       1 * time.Second,
}

// PendingRequest records one timed-out admission attempt, kept for the
// advisory queue's fairness/observability bookkeeping (§4.2).
type PendingRequest struct {
	Priority  StreamPriority
	CreatedAt time.Time
}

// StreamPermit is a scope-bound admission token. Release returns the slot
// to the pool; safe to call more than once.
type StreamPermit struct {
	once    sync.Once
	release func()
}

// Release returns the permit's slot to the FlowController.
func (p *StreamPermit) Release() {
	p.once.Do(p.release)
}

// FlowController bounds the number of simultaneous streams (C2). Admission
// uses a priority-specific timeout ladder; Critical and High additionally
// get a non-blocking fast path before falling into the timed wait.
type FlowController struct {
	maxConcurrent int
	sem           chan struct{}

	mu    sync.Mutex
	queue map[StreamPriority][]PendingRequest

	processedCounter atomic.Int64

	metrics *hiveotel.Metrics
}

// NewFlowController builds a controller admitting at most maxConcurrent
// simultaneous streams.
func NewFlowController(maxConcurrent int) *FlowController {
	return &FlowController{
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		queue:         make(map[StreamPriority][]PendingRequest),
	}
}

// WithMetrics attaches the OTel instrument set this controller records
// admissions and rejections against. A nil receiver or nil m leaves
// recording disabled.
func (fc *FlowController) WithMetrics(m *hiveotel.Metrics) *FlowController {
	fc.metrics = m
	return fc
}

func (fc *FlowController) recordAdmission(ctx context.Context, priority StreamPriority) {
	if fc.metrics == nil || fc.metrics.FlowAdmissions == nil {
		return
	}
	fc.metrics.FlowAdmissions.Add(ctx, 1, metric.WithAttributes(hiveotel.AttrPriority.String(string(priority))))
}

func (fc *FlowController) recordRejection(ctx context.Context, priority StreamPriority) {
	if fc.metrics == nil || fc.metrics.FlowRejections == nil {
		return
	}
	fc.metrics.FlowRejections.Add(ctx, 1, metric.WithAttributes(hiveotel.AttrPriority.String(string(priority))))
}

// Acquire admits one stream slot at the given priority, following the
// admission algorithm in §4.2. On timeout it records a PendingRequest and
// fails with *hiveerrors.RateLimit carrying retry_after_ms=1000.
func (fc *FlowController) Acquire(ctx context.Context, priority StreamPriority) (*StreamPermit, error) {
	if priority == PriorityCritical || priority == PriorityHigh {
		select {
		case fc.sem <- struct{}{}:
			fc.processedCounter.Add(1)
			fc.recordAdmission(ctx, priority)
			return fc.newPermit(), nil
		default:
		}
	}

	timeout, ok := priorityTimeouts[priority]
	if !ok {
		timeout = priorityTimeouts[PriorityNormal]
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fc.sem <- struct{}{}:
		fc.processedCounter.Add(1)
		fc.recordAdmission(ctx, priority)
		return fc.newPermit(), nil
	case <-timer.C:
		fc.enqueue(ctx, priority)
		fc.recordRejection(ctx, priority)
		return nil, &hiveerrors.RateLimit{
			Limit:        fc.maxConcurrent,
			Window:       timeout.String(),
			RetryAfterMs: 1000,
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (fc *FlowController) newPermit() *StreamPermit {
	var released atomic.Bool
	return &StreamPermit{release: func() {
		if released.CompareAndSwap(false, true) {
			<-fc.sem
		}
	}}
}

func (fc *FlowController) enqueue(ctx context.Context, p StreamPriority) {
	fc.mu.Lock()
	fc.queue[p] = append(fc.queue[p], PendingRequest{Priority: p, CreatedAt: time.Now()})
	fc.mu.Unlock()

	if fc.metrics != nil && fc.metrics.FlowQueueDepth != nil {
		fc.metrics.FlowQueueDepth.Add(ctx, 1)
	}
}

// AvailablePermits returns the number of currently unused slots.
func (fc *FlowController) AvailablePermits() int {
	return fc.maxConcurrent - len(fc.sem)
}

// ProcessedCount returns the number of permits granted so far.
func (fc *FlowController) ProcessedCount() int64 {
	return fc.processedCounter.Load()
}

// QueueDepth returns the number of pending-request records currently held
// across all priorities, for observability.
func (fc *FlowController) QueueDepth() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, q := range fc.queue {
		n += len(q)
	}
	return n
}

// DrainQueueOnce runs one pass of the queue drainer described in §4.2: it
// walks priorities Critical→High→Normal→Low, and within a priority drains
// FIFO by created_at, opportunistically trying a non-blocking acquire for
// each entry. The drainer is purely best-effort bookkeeping — it cannot
// resume a caller that already timed out and returned, so a successful
// trial acquire here is released immediately; it only trims stale queue
// entries. The spec's own Open Questions section permits this reading
// (drainer does not directly resume a waiting caller; callers who time
// out must re-submit after retry_after_ms).
func (fc *FlowController) DrainQueueOnce(ctx context.Context) {
	fc.mu.Lock()
	drained := 0
	for _, p := range priorityOrder {
		q := fc.queue[p]
		for len(q) > 0 {
			select {
			case fc.sem <- struct{}{}:
				<-fc.sem
				q = q[1:]
				drained++
			default:
				fc.queue[p] = q
				fc.mu.Unlock()
				fc.recordQueueDrain(ctx, drained)
				return
			}
		}
		fc.queue[p] = q
	}
	fc.mu.Unlock()
	fc.recordQueueDrain(ctx, drained)
}

func (fc *FlowController) recordQueueDrain(ctx context.Context, drained int) {
	if drained == 0 || fc.metrics == nil || fc.metrics.FlowQueueDepth == nil {
		return
	}
	fc.metrics.FlowQueueDepth.Add(ctx, int64(-drained))
}

// StartDrainer runs DrainQueueOnce on a periodic tick until ctx is
// canceled. Returns a channel that closes once the drainer goroutine has
// exited, for tests that want to observe shutdown.
func (fc *FlowController) StartDrainer(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fc.DrainQueueOnce(ctx)
			}
		}
	}()
	return done
}
