package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/blueprint/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-compile sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	return el.store.AppendEvent(ctx, event)
}

// GetEvents returns events for a compile pass with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, compileID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, compileID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// Timeline is the state history of one compile pass rebuilt from its events.
type Timeline struct {
	CompileID   string               `json:"compile_id"`
	Status      schema.CompileStatus `json:"status"`
	Transitions []TransitionPayload  `json:"transitions"`
	FailedNode  string               `json:"failed_node,omitempty"`
	CacheHit    bool                 `json:"cache_hit,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// ReplayEvents rebuilds the timeline of a compile pass.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, compileID string) (*Timeline, error) {
	events, err := el.store.GetEvents(ctx, compileID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	if len(events) == 0 {
		return nil, storeNotFound("compile", compileID)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in compile %s: expected %d, got %d", compileID, expected, e.Sequence)
		}
	}

	tl := &Timeline{CompileID: compileID, Status: schema.CompileStatusUnvalidated}
	for _, e := range events {
		ts := e.Timestamp
		if tl.StartedAt == nil {
			tl.StartedAt = &ts
		}

		if e.Type == schema.EventCompileCacheHit {
			tl.CacheHit = true
			tl.Status = schema.CompileStatusCompiled
			tl.FinishedAt = &ts
			continue
		}

		var tp TransitionPayload
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &tp); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", e.Sequence, err)
			}
		}
		if tp.To == "" {
			continue
		}
		tl.Transitions = append(tl.Transitions, tp)
		tl.Status = tp.To
		if tp.To == schema.CompileStatusFailed && e.NodeID != "" {
			tl.FailedNode = e.NodeID
		}
		if tp.To.IsTerminal() {
			tl.FinishedAt = &ts
		}
	}
	return tl, nil
}
