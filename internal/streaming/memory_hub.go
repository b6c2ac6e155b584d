package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/renderflow/engine/pkg/schema"
)

// subscriberBuffer sizes each subscription channel. A 60Hz frame loop emits
// events far faster than an SSE client drains them, so the buffer trades a
// little latency for burst tolerance.
const subscriberBuffer = 64

type subscription struct {
	ch     chan StreamEvent
	filter EventFilter
}

// MemoryHub fans run events out to in-process subscribers. Slow subscribers
// never block the frame loop: frame-cadence events are dropped once a
// subscriber's buffer fills, while lifecycle events evict the oldest
// buffered event to make room, so a stalled client still learns how the run
// ended.
type MemoryHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  atomic.Uint64
	dropped atomic.Int64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscription)}
}

// Dropped reports how many events have been discarded on full subscriber
// buffers since the hub was created.
func (h *MemoryHub) Dropped() int64 { return h.dropped.Load() }

// Publish delivers the event to every matching subscriber without blocking.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.filter.matches(event) {
			continue
		}
		h.offer(sub, event)
	}
	return nil
}

// offer hands the event to one subscriber. On a full buffer a frame-cadence
// event is stale the moment the next frame begins, so it is dropped;
// anything else evicts the oldest buffered event and retries once.
func (h *MemoryHub) offer(sub *subscription, event StreamEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	if frameCadence(event.EventType) {
		h.dropped.Add(1)
		return
	}
	select {
	case <-sub.ch:
		h.dropped.Add(1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe registers a new subscriber. Events matching the filter arrive on
// the returned channel until the cancel function runs.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.nextID.Add(1)
	sub := &subscription{
		ch:     make(chan StreamEvent, subscriberBuffer),
		filter: filter,
	}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

// frameCadence reports whether the event type recurs every frame of a loop.
func frameCadence(eventType string) bool {
	switch eventType {
	case schema.EventFrameBegun, schema.EventFrameSubmitted, schema.EventFrameSkipped:
		return true
	}
	return false
}

func (f EventFilter) matches(e StreamEvent) bool {
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	return true
}
