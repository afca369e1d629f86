package store

import (
	"context"
	"time"

	"github.com/rendis/blueprint/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Compile history
	SaveArtifact(ctx context.Context, a *schema.CompiledArtifact) error
	GetArtifact(ctx context.Context, id string) (*schema.CompiledArtifact, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*schema.CompiledArtifact, error)
	PruneArtifacts(ctx context.Context, before time.Time) (int64, error)

	// Artifact cache
	Lookup(ctx context.Context, key string) (*schema.CompiledArtifact, bool, error)
	Remember(ctx context.Context, key string, a *schema.CompiledArtifact) error
	CacheStats(ctx context.Context) (CacheStats, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, compileID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
