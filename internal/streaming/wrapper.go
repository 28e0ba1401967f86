package streaming

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

// streamHints are the description keywords that trigger streaming even
// without an explicit stream=true parameter (§4.3).
var streamHints = []string{
	"batch_create", "analyze_large", "process_bulk", "generate_report",
	"workflow", "analytics", "migration", "backup",
}

// ToolInvocation is the minimal shape the wrapper needs from a tool call:
// its description (for hint matching) and its parameters.
type ToolInvocation struct {
	Description string
	Parameters  map[string]any
}

// ShouldStream reports whether inv should be streamed, per §4.3: an
// explicit stream=true parameter, or any description hint keyword.
func ShouldStream(inv ToolInvocation) bool {
	if v, ok := inv.Parameters["stream"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	desc := strings.ToLower(inv.Description)
	for _, hint := range streamHints {
		if strings.Contains(desc, hint) {
			return true
		}
	}
	return false
}

// DerivePriority derives a StreamPriority from an explicit "priority"
// parameter or, failing that, from description keywords.
func DerivePriority(inv ToolInvocation) StreamPriority {
	if v, ok := inv.Parameters["priority"]; ok {
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "critical":
				return PriorityCritical
			case "high":
				return PriorityHigh
			case "low":
				return PriorityLow
			case "normal":
				return PriorityNormal
			}
		}
	}
	desc := strings.ToLower(inv.Description)
	switch {
	case strings.Contains(desc, "emergency"), strings.Contains(desc, "critical"):
		return PriorityCritical
	case strings.Contains(desc, "urgent"), strings.Contains(desc, "high"):
		return PriorityHigh
	case strings.Contains(desc, "background"), strings.Contains(desc, "low"):
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// SessionFactory constructs an advanced streaming session, acquiring a
// flow-control permit. It is injected so callers can simulate the
// RateLimit failure that triggers the basic fallback (S5).
type SessionFactory func(ctx context.Context, priority StreamPriority) (*Session, error)

// Envelope is the start-of-stream response returned to the caller.
type Envelope struct {
	StreamID  string
	Streaming bool
	Fallback  bool
}

// Wrapper decides whether to stream a tool invocation and, if so, creates
// either an advanced session or — on advanced-session failure — a basic
// fallback session sharing the same StreamHandle broadcast protocol but
// without backpressure or flow accounting (§4.3).
type Wrapper struct {
	createAdvanced SessionFactory
}

// NewWrapper builds a Wrapper that uses createAdvanced to build advanced
// sessions.
func NewWrapper(createAdvanced SessionFactory) *Wrapper {
	return &Wrapper{createAdvanced: createAdvanced}
}

// Invoke decides whether to stream inv. If it does not stream, ok is
// false and the caller should execute the tool directly. If it streams,
// it returns the start envelope and a function that runs the produced
// chunks against the bound handle; the caller must invoke that function
// (typically in a goroutine) to drive execution to completion.
func (w *Wrapper) Invoke(ctx context.Context, streamID string, inv ToolInvocation, produce ChunkProducer) (Envelope, func() error, bool) {
	if !ShouldStream(inv) {
		return Envelope{}, nil, false
	}

	priority := DerivePriority(inv)
	sess, err := w.createAdvanced(ctx, priority)
	if err == nil {
		run := func() error {
			return sess.Run(ctx, inv.Description, produce)
		}
		return Envelope{StreamID: streamID, Streaming: true, Fallback: false}, run, true
	}

	var rl *hiveerrors.RateLimit
	if !errors.As(err, &rl) {
		// Non-recoverable failure: surface as-is, no fallback attempted.
		run := func() error { return err }
		return Envelope{StreamID: streamID, Streaming: true, Fallback: false}, run, true
	}

	handle := NewStreamHandle(streamID)
	run := runBasicFallback(handle, produce)
	return Envelope{StreamID: streamID, Streaming: true, Fallback: true}, run, true
}

// runBasicFallback drives produce directly against handle with no
// backpressure or flow-control accounting: an initial update, repeated
// chunk broadcasts, and exactly one terminal frame.
func runBasicFallback(handle *StreamHandle, produce ChunkProducer) func() error {
	var once sync.Once
	return func() error {
		var retErr error
		once.Do(func() {
			ctx := context.Background()
			for {
				chunk, done, err := produce(ctx)
				if err != nil {
					handle.SendError(map[string]any{"error": err.Error()})
					retErr = err
					return
				}
				if done {
					handle.SendFinal(map[string]any{"done": true})
					return
				}
				handle.SendUpdate(chunk)
			}
		})
		return retErr
	}
}
