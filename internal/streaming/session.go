package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
)

// backpressureResumeTimeout bounds how long a paused producer waits for
// subscribers to drain below the low watermark before Run gives up and
// fails the stream. Independent of ResourceLimits.MaxDuration: a paused
// stream must not be able to sit silent for the full (1h-default) stream
// duration just because nothing ever resampled occupancy.
const backpressureResumeTimeout = 5 * time.Second

// ResourceLimits bounds one session's output, per §4.3's defaults.
type ResourceLimits struct {
	MaxBytesPerStream  int64
	MaxDuration        time.Duration
	BufferHighWatermark int
	BufferLowWatermark  int
}

// DefaultResourceLimits returns the spec's documented defaults: 100 MiB,
// 1 hour, 1000/100 item watermarks.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxBytesPerStream:   100 * 1024 * 1024,
		MaxDuration:         time.Hour,
		BufferHighWatermark: 1000,
		BufferLowWatermark:  100,
	}
}

// ChunkProducer yields the next chunk of a streamed result. It returns
// (chunk, false, nil) when done producing, or an error to signal failure.
type ChunkProducer func(ctx context.Context) (payload []byte, done bool, err error)

// Session wraps a StreamHandle with a flow-control permit, a
// BackpressureController, and resource ceilings (C3 StreamingSession).
type Session struct {
	ID          string
	handle      *StreamHandle
	permit      *StreamPermit
	backpressure *BackpressureController
	limits      ResourceLimits
	startedAt   time.Time

	bytesStreamed atomic.Int64

	metrics *hiveotel.Metrics
}

// WithMetrics attaches the OTel instrument set this session records
// streamed bytes/chunks and backpressure pauses against. A nil m leaves
// recording disabled.
func (s *Session) WithMetrics(m *hiveotel.Metrics) *Session {
	s.metrics = m
	return s
}

// NewSession constructs a session bound to handle and permit, using limits
// for its resource ceilings and bp for backpressure tracking.
func NewSession(id string, handle *StreamHandle, permit *StreamPermit, bp *BackpressureController, limits ResourceLimits) *Session {
	return &Session{
		ID:           id,
		handle:       handle,
		permit:       permit,
		backpressure: bp,
		limits:       limits,
		startedAt:    time.Now(),
	}
}

// BytesStreamed returns the total bytes sent so far.
func (s *Session) BytesStreamed() int64 {
	return s.bytesStreamed.Load()
}

// Subscribe registers a new receiver on the session's underlying handle.
func (s *Session) Subscribe() (<-chan Chunk, func()) {
	return s.handle.Subscribe()
}

// Status returns the underlying handle's lifecycle state.
func (s *Session) Status() HandleStatus {
	return s.handle.Status()
}

// Run executes the chunked-production algorithm from §4.3: an initial
// metadata frame, repeated chunk production with resource-limit checks and
// cooperative backpressure suspension, and a terminal frame. The permit is
// always released on return, regardless of outcome.
func (s *Session) Run(ctx context.Context, operationType string, produce ChunkProducer) error {
	defer s.permit.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.limits.MaxDuration)
	defer cancel()

	if err := s.handle.SendUpdate(map[string]any{
		"started_at":     s.startedAt,
		"operation_type": operationType,
		"progress":       0,
	}); err != nil {
		return err
	}

	for {
		select {
		case <-runCtx.Done():
			s.handle.SendError(map[string]any{"error": "stream timed out"})
			return fmt.Errorf("session %s: timed out after %s", s.ID, s.limits.MaxDuration)
		default:
		}

		chunk, done, err := produce(runCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.handle.SendError(map[string]any{"error": "stream timed out"})
				return fmt.Errorf("session %s: timed out after %s", s.ID, s.limits.MaxDuration)
			}
			s.handle.SendError(map[string]any{"error": err.Error()})
			return err
		}
		if done {
			s.handle.SendFinal(map[string]any{
				"duration_ms":    time.Since(s.startedAt).Milliseconds(),
				"bytes_streamed": s.bytesStreamed.Load(),
			})
			return nil
		}

		total := s.bytesStreamed.Add(int64(len(chunk)))
		if total > s.limits.MaxBytesPerStream {
			s.handle.SendError(map[string]any{"error": "max_bytes_per_stream exceeded"})
			return fmt.Errorf("session %s: exceeded max bytes per stream", s.ID)
		}
		if time.Since(s.startedAt) > s.limits.MaxDuration {
			s.handle.SendError(map[string]any{"error": "stream timed out"})
			return fmt.Errorf("session %s: timed out after %s", s.ID, s.limits.MaxDuration)
		}

		if err := s.handle.SendUpdate(chunk); err != nil {
			return err
		}
		if s.metrics != nil {
			if s.metrics.StreamBytesTotal != nil {
				s.metrics.StreamBytesTotal.Add(runCtx, int64(len(chunk)))
			}
			if s.metrics.StreamChunksTotal != nil {
				s.metrics.StreamChunksTotal.Add(runCtx, 1)
			}
		}

		// Measure occupancy after the send lands in subscriber rings, not
		// the byte length of the chunk just produced: the watermarks are
		// item counts (§4.3), not byte counts.
		transition := s.backpressure.UpdateBufferSize(s.handle.SubscriberDepth())
		if transition == Paused {
			if s.metrics != nil && s.metrics.BackpressurePauses != nil {
				s.metrics.BackpressurePauses.Add(runCtx, 1, metric.WithAttributes(hiveotel.AttrStreamID.String(s.ID)))
			}
			if err := s.waitForResume(runCtx); err != nil {
				s.handle.SendError(map[string]any{"error": err.Error()})
				return err
			}
		}
	}
}

// waitForResume cooperatively suspends the producer, resampling the
// subscriber ring occupancy on each tick, until the backpressure
// controller clears Paused or backpressureResumeTimeout elapses. Bounding
// the wait independently of runCtx's MaxDuration means a stalled consumer
// fails the stream in seconds, not silently up to the full stream
// duration.
func (s *Session) waitForResume(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.NewTimer(backpressureResumeTimeout)
	defer timeout.Stop()
	for {
		s.backpressure.UpdateBufferSize(s.handle.SubscriberDepth())
		if !s.backpressure.Stats().Paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("session %s: backpressure did not clear within %s", s.ID, backpressureResumeTimeout)
		case <-ticker.C:
		}
	}
}

// Cancel transitions the underlying handle to Cancelled and releases the
// flow-control permit.
func (s *Session) Cancel() {
	s.handle.Cancel()
	s.permit.Release()
}
