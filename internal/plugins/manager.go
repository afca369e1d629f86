// Package plugins loads kind packs: JSON files declaring template-driven node
// kinds that are registered under a namespace prefix at startup.
package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/blueprint/internal/nodes"
)

// Pack status values.
const (
	StatusLoaded = "loaded"
	StatusFailed = "failed"
)

// PackInfo describes one pack file seen by the manager.
type PackInfo struct {
	Prefix string   `json:"prefix,omitempty"`
	Path   string   `json:"path"`
	Kinds  []string `json:"kinds,omitempty"`
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
}

// PluginManager registers kind packs into a registry.
type PluginManager struct {
	registry *nodes.Registry
	schema   *jsonschema.Schema
	logger   *slog.Logger

	mu    sync.RWMutex
	packs map[string]*PackInfo // by path
}

// NewPluginManager creates a PluginManager that registers into reg.
func NewPluginManager(reg *nodes.Registry, logger *slog.Logger) (*PluginManager, error) {
	s, err := compileManifestSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginManager{
		registry: reg,
		schema:   s,
		logger:   logger,
		packs:    make(map[string]*PackInfo),
	}, nil
}

// LoadFile registers the kinds of one pack and returns how many were added.
// A kind that fails registration stops the pack; kinds before it stay registered.
func (pm *PluginManager) LoadFile(path string) (int, error) {
	pm.mu.Lock()
	if _, exists := pm.packs[path]; exists {
		pm.mu.Unlock()
		return 0, fmt.Errorf("kind pack %q already loaded", path)
	}
	info := &PackInfo{Path: path, Status: StatusFailed}
	pm.packs[path] = info
	pm.mu.Unlock()

	n, err := pm.load(path, info)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if err != nil {
		info.Error = err.Error()
		pm.logger.Warn("kind pack failed", slog.String("path", path), slog.String("error", err.Error()))
		return n, err
	}
	info.Status = StatusLoaded
	pm.logger.Info("kind pack loaded", slog.String("prefix", info.Prefix), slog.Int("kinds", n))
	return n, nil
}

func (pm *PluginManager) load(path string, info *PackInfo) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read kind pack: %w", err)
	}
	m, err := parseManifest(pm.schema, data)
	if err != nil {
		return 0, err
	}
	info.Prefix = m.Prefix
	for _, k := range m.Kinds {
		info.Kinds = append(info.Kinds, m.Prefix+"."+k.Name)
	}
	return pm.registry.RegisterPlugin(m.Prefix, m.NodeKinds())
}

// LoadDir loads every *.json pack in dir in name order. A missing directory
// loads nothing. Failures are joined; other packs still load.
func (pm *PluginManager) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list kind packs: %w", err)
	}
	sort.Strings(paths)

	total := 0
	var errs []error
	for _, p := range paths {
		n, err := pm.LoadFile(p)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(p), err))
		}
	}
	return total, errors.Join(errs...)
}

// Packs returns every pack seen so far, sorted by path.
func (pm *PluginManager) Packs() []PackInfo {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]PackInfo, 0, len(pm.packs))
	for _, p := range pm.packs {
		cp := *p
		cp.Kinds = append([]string(nil), p.Kinds...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
