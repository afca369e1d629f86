package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/blueprint/pkg/schema"
)

// Event is an immutable entry in the compile event log.
type Event struct {
	ID        int64           `json:"id"`
	CompileID string          `json:"compile_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// TransitionPayload is the payload of an event emitted on a compile state change.
type TransitionPayload struct {
	From schema.CompileStatus `json:"from"`
	To   schema.CompileStatus `json:"to"`
}

// ArtifactFilter specifies criteria for listing compile history.
type ArtifactFilter struct {
	GraphName string               `json:"graph_name,omitempty"`
	GraphHash string               `json:"graph_hash,omitempty"`
	Status    schema.CompileStatus `json:"status,omitempty"`
	Since     *time.Time           `json:"since,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
}

// EventFilter specifies criteria for querying events.
type EventFilter struct {
	CompileID string     `json:"compile_id,omitempty"`
	NodeID    string     `json:"node_id,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// CacheStats summarizes the artifact cache.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
}
