package streaming

import (
	"sync"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

// defaultRingCapacity is the recommended per-subscriber buffer size (§3).
const defaultRingCapacity = 1000

// HandleStatus is the lifecycle state of a StreamHandle.
type HandleStatus string

const (
	HandleStarted    HandleStatus = "Started"
	HandleInProgress HandleStatus = "InProgress"
	HandleCompleted  HandleStatus = "Completed"
	HandleFailed     HandleStatus = "Failed"
	HandleCancelled  HandleStatus = "Cancelled"
)

// ChunkKind distinguishes the three send operations a producer can issue.
type ChunkKind string

const (
	ChunkUpdate ChunkKind = "update"
	ChunkFinal  ChunkKind = "final"
	ChunkError  ChunkKind = "error"
)

// Chunk is one item delivered to subscribers.
type Chunk struct {
	Kind    ChunkKind
	Payload any
}

// subscriber wraps one subscriber's ring buffer with its own mutex so a
// full-buffer drop-oldest can happen without racing other subscribers.
type subscriber struct {
	mu sync.Mutex
	ch chan Chunk
}

func (s *subscriber) send(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- c:
		return
	default:
	}
	// Ring full: drop the oldest unread entry, then retry. A concurrent
	// reader may have drained a slot between the failed send and here,
	// which is fine — the retry still succeeds non-blocking.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- c:
	default:
	}
}

// StreamHandle is the multi-subscriber broadcast fan-out for one stream
// (C3). Producers never block: a full ring drops the oldest unread entry
// for each slow subscriber (broadcast-with-lag) rather than stalling the
// producer or the other subscribers.
type StreamHandle struct {
	mu       sync.RWMutex
	streamID string
	status   HandleStatus
	failErr  string
	subs     map[int]*subscriber
	nextID   int
	capacity int
}

// NewStreamHandle creates a Started handle for streamID.
func NewStreamHandle(streamID string) *StreamHandle {
	return &StreamHandle{
		streamID: streamID,
		status:   HandleStarted,
		subs:     make(map[int]*subscriber),
		capacity: defaultRingCapacity,
	}
}

// StreamID returns the handle's identifier.
func (h *StreamHandle) StreamID() string { return h.streamID }

// Status returns the handle's current lifecycle state.
func (h *StreamHandle) Status() HandleStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// SubscriberDepth returns the largest number of buffered-but-unread chunks
// across all current subscribers. This is the real occupancy a producer's
// BackpressureController should latch against — a ring of items, not the
// byte length of whatever chunk happens to be in flight.
func (h *StreamHandle) SubscriberDepth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	max := 0
	for _, s := range h.subs {
		if n := len(s.ch); n > max {
			max = n
		}
	}
	return max
}

// Subscribe registers a new receiver and returns its channel plus an
// unsubscribe function.
func (h *StreamHandle) Subscribe() (<-chan Chunk, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Chunk, h.capacity)}
	h.subs[id] = sub

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
	return sub.ch, unsubscribe
}

func (h *StreamHandle) broadcast(kind ChunkKind, payload any) error {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return &hiveerrors.Internal{Message: "no subscriber reachable on stream " + h.streamID}
	}
	chunk := Chunk{Kind: kind, Payload: payload}
	for _, s := range subs {
		s.send(chunk)
	}
	return nil
}

// SendUpdate transitions the handle to InProgress (if not already
// terminal) and broadcasts an update chunk.
func (h *StreamHandle) SendUpdate(payload any) error {
	h.mu.Lock()
	if isTerminal(h.status) {
		h.mu.Unlock()
		return &hiveerrors.Internal{Message: "send on terminal stream " + h.streamID}
	}
	h.status = HandleInProgress
	h.mu.Unlock()
	return h.broadcast(ChunkUpdate, payload)
}

// SendFinal transitions the handle to Completed and broadcasts the result.
func (h *StreamHandle) SendFinal(payload any) error {
	h.mu.Lock()
	if isTerminal(h.status) {
		h.mu.Unlock()
		return &hiveerrors.Internal{Message: "send on terminal stream " + h.streamID}
	}
	h.status = HandleCompleted
	h.mu.Unlock()
	return h.broadcast(ChunkFinal, payload)
}

// SendError transitions the handle to Failed and broadcasts the error.
func (h *StreamHandle) SendError(payload any) error {
	h.mu.Lock()
	if isTerminal(h.status) {
		h.mu.Unlock()
		return &hiveerrors.Internal{Message: "send on terminal stream " + h.streamID}
	}
	h.status = HandleFailed
	h.mu.Unlock()
	return h.broadcast(ChunkError, payload)
}

// Cancel transitions the handle to Cancelled. Idempotent once terminal.
func (h *StreamHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if isTerminal(h.status) {
		return
	}
	h.status = HandleCancelled
}

func isTerminal(s HandleStatus) bool {
	switch s {
	case HandleCompleted, HandleFailed, HandleCancelled:
		return true
	default:
		return false
	}
}
