package engine

import (
	"context"
	"sync"

	"github.com/rendis/blueprint/pkg/schema"
)

// MemoryCache is an in-process ArtifactCache. Entries are stored and
// returned as copies.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*schema.CompiledArtifact
	hits    int64
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*schema.CompiledArtifact)}
}

// Lookup returns a copy of the artifact cached under key.
func (m *MemoryCache) Lookup(_ context.Context, key string) (*schema.CompiledArtifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	m.hits++
	return a.Clone(), true, nil
}

// Remember caches a compiled artifact under key.
func (m *MemoryCache) Remember(_ context.Context, key string, a *schema.CompiledArtifact) error {
	if a == nil || !a.Succeeded() {
		return schema.NewError(schema.ErrCodeValidation, "only compiled artifacts can be cached")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = a.Clone()
	return nil
}

// Len returns the number of cached artifacts.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Hits returns the number of successful lookups.
func (m *MemoryCache) Hits() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits
}

var _ ArtifactCache = (*MemoryCache)(nil)
