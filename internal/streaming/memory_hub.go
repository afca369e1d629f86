package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is the per-subscription channel capacity.
const subscriberBuffer = 64

// MemoryHub is an in-process EventHub. Slow subscribers lose events rather
// than stall a compile pass.
type MemoryHub struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	dropped atomic.Int64
}

type subscription struct {
	ch     chan StreamEvent
	filter EventFilter
	once   sync.Once
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: map[*subscription]struct{}{}}
}

// Publish delivers event to every subscription whose filter accepts it.
// A full subscriber channel counts as a drop.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.filter.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a filtered subscription. The returned cancel func
// unregisters it and closes the channel; calling it again is a no-op.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s := &subscription{ch: make(chan StreamEvent, subscriberBuffer), filter: filter}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s.ch, func() { h.unsubscribe(s) }, nil
}

func (h *MemoryHub) unsubscribe(s *subscription) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		close(s.ch)
	})
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *MemoryHub) Dropped() int64 {
	return h.dropped.Load()
}

// Matches reports whether e passes the filter. Empty fields match anything.
func (f EventFilter) Matches(e StreamEvent) bool {
	if f.CompileID != "" && f.CompileID != e.CompileID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, e.EventType)
}
