// Package rebuild recompiles a directory of graph assets on a cron schedule
// and writes the generated source next to each asset.
package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/blueprint/internal/loader"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/pkg/schema"
)

// OutputSuffix replaces ".json" in the name of a generated file.
const OutputSuffix = ".gen.cs"

// DefaultSchedule rebuilds once a minute.
const DefaultSchedule = "* * * * *"

// GraphCompiler is the compile entry point the watcher drives.
// Satisfied by *engine.Compiler.
type GraphCompiler interface {
	Compile(ctx context.Context, def *schema.GraphDefinition) (*schema.CompiledArtifact, error)
}

// Report summarizes one scan of the watched directory.
type Report struct {
	Compiled  int      `json:"compiled"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Written   []string `json:"written,omitempty"`
}

// Watcher rescans a directory of *.json graphs on a 5-field cron schedule.
type Watcher struct {
	dir      string
	spec     string
	schedule cron.Schedule
	compiler GraphCompiler
	loader   *loader.Loader
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	scanMu sync.Mutex // one scan at a time
}

// NewWatcher creates a Watcher over dir. An empty spec uses DefaultSchedule.
func NewWatcher(dir, spec string, c GraphCompiler, logger *slog.Logger) (*Watcher, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		spec:     spec,
		schedule: sched,
		compiler: c,
		loader:   loader.New(),
		logger:   logger,
	}, nil
}

// NextRun returns the first scan time after from.
func (w *Watcher) NextRun(from time.Time) time.Time {
	return w.schedule.Next(from)
}

// Start scans once immediately, then on every schedule tick until Stop or
// ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(loopCtx)
	w.logger.Info("rebuild watcher started", slog.String("dir", w.dir), slog.String("schedule", w.spec))
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	w.tick(ctx)
	for {
		timer := time.NewTimer(time.Until(w.NextRun(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	report, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("rebuild scan failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("rebuild scan finished",
		slog.Int("compiled", report.Compiled),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed),
	)
}

// Stop ends the loop and waits for an in-flight scan to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil

	w.logger.Info("rebuild watcher stopped")
	return nil
}

// RunOnce compiles every graph in the directory once. Per-graph failures
// are logged and counted; only a failure to list the directory is returned.
func (w *Watcher) RunOnce(ctx context.Context) (Report, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	var report Report
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return report, fmt.Errorf("list graphs in %s: %w", w.dir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		written, err := w.rebuild(ctx, path)
		switch {
		case err != nil:
			report.Failed++
			w.logger.Warn("graph rebuild failed", slog.String("path", path), slog.String("error", err.Error()))
		case written == "":
			report.Unchanged++
		default:
			report.Compiled++
			report.Written = append(report.Written, written)
		}
	}
	return report, nil
}

// rebuild compiles one asset and returns the path written, or "" when the
// output on disk already matches.
func (w *Watcher) rebuild(ctx context.Context, path string) (string, error) {
	def, err := w.loader.Load(ctx, path, "")
	if err != nil {
		return "", err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	a, err := w.compiler.Compile(ctx, def)
	if err != nil {
		return "", err
	}
	logging.LogWith(logging.WithIDs(ctx, a.ID, def.Name, ""), w.logger).
		Debug("graph compiled", slog.Bool("cached", a.Cached))

	out := OutputPath(path)
	existing, err := os.ReadFile(out)
	if err == nil && bytes.Equal(existing, []byte(a.SourceText)) {
		return "", nil
	}
	if err := os.WriteFile(out, []byte(a.SourceText), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

// OutputPath returns the generated file path for a graph asset.
func OutputPath(graphPath string) string {
	return strings.TrimSuffix(graphPath, ".json") + OutputSuffix
}
