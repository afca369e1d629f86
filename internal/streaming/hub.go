// Package streaming fans compile events out to live subscribers.
package streaming

import (
	"context"
	"encoding/json"
	"time"
)

// StreamEvent is a compile event delivered as it happens.
type StreamEvent struct {
	CompileID string          `json:"compile_id"`
	NodeID    string          `json:"node_id,omitempty"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	CompileID  string   `json:"compile_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for compile events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
