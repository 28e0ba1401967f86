// Package streaming implements the streaming response engine: a
// per-session backpressure controller (C1), a priority-aware flow
// controller bounding concurrent streams (C2), and the streaming session /
// broadcast fan-out handle (C3).
package streaming

import "sync"

// BackpressureState is a point-in-time snapshot of a BackpressureController.
type BackpressureState struct {
	CurrentBufferSize int
	HighWatermark     int
	LowWatermark      int
	Paused            bool
	PauseEvents       int64
}

// Transition is the result of feeding a new buffer size to the controller.
type Transition int

const (
	Normal Transition = iota
	Paused
	Resumed
)

func (t Transition) String() string {
	switch t {
	case Paused:
		return "Paused"
	case Resumed:
		return "Resumed"
	default:
		return "Normal"
	}
}

// BackpressureController is a hysteresis latch over a single producer's
// output buffer (C1). low_watermark MUST be strictly less than
// high_watermark; paused only flips on strict crossings, preventing
// oscillation under bursty producers.
type BackpressureController struct {
	mu          sync.Mutex
	high        int
	low         int
	currentSize int
	paused      bool
	pauseEvents int64
}

// NewBackpressureController builds a controller with the given watermarks.
func NewBackpressureController(high, low int) *BackpressureController {
	return &BackpressureController{high: high, low: low}
}

// UpdateBufferSize records the observed buffer size and applies the latch:
//   - n > high and not paused  -> latch paused, return Paused
//   - n <= low and paused      -> clear paused, return Resumed
//   - otherwise                -> Normal
//
// Idempotent: repeated calls with the same n produce the same transition
// given the same starting state.
func (c *BackpressureController) UpdateBufferSize(n int) Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentSize = n

	if n > c.high && !c.paused {
		c.paused = true
		c.pauseEvents++
		return Paused
	}
	if n <= c.low && c.paused {
		c.paused = false
		return Resumed
	}
	return Normal
}

// ShouldApplyBackpressure is UpdateBufferSize's side-effecting convenience
// form: it reports whether the controller latched into Paused during this
// call. For pure observability use Stats.
func (c *BackpressureController) ShouldApplyBackpressure(n int) bool {
	return c.UpdateBufferSize(n) == Paused
}

// Stats returns a pure-query snapshot with no side effects.
func (c *BackpressureController) Stats() BackpressureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BackpressureState{
		CurrentBufferSize: c.currentSize,
		HighWatermark:     c.high,
		LowWatermark:      c.low,
		Paused:            c.paused,
		PauseEvents:       c.pauseEvents,
	}
}
