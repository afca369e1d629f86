package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/plugins"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/internal/streaming"
)

// app is the wired object graph shared by all subcommands.
type app struct {
	cfg      Config
	logger   *slog.Logger
	registry *nodes.Registry
	plugins  *plugins.PluginManager
	hub      *streaming.MemoryHub
	store    *store.LibSQLStore // nil when the database could not be opened
	compiler *engine.Compiler
}

// newApp wires registry, store and compiler. withStore=false skips the
// database entirely; a store that fails to open only disables history.
func newApp(ctx context.Context, cfg Config, withStore bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logging.New(os.Stderr, cfg.LogLevel),
		registry: nodes.NewRegistry(),
		hub:      streaming.NewMemoryHub(),
	}
	if err := nodes.RegisterBuiltins(a.registry); err != nil {
		return nil, fmt.Errorf("register builtin kinds: %w", err)
	}
	pm, err := plugins.NewPluginManager(a.registry, a.logger)
	if err != nil {
		return nil, fmt.Errorf("kind packs: %w", err)
	}
	if _, err := pm.LoadDir(cfg.PluginDir); err != nil {
		a.logger.Warn("some kind packs were not loaded", "dir", cfg.PluginDir, "error", err)
	}
	a.plugins = pm

	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithSeparator(cfg.Separator),
	}
	var events streaming.Appender
	if withStore {
		st, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			a.logger.Warn("compile history disabled", "db_path", cfg.DBPath, "error", err)
		} else {
			a.store = st
			events = store.NewEventLog(st)
			opts = append(opts, engine.WithHistory(st))
			if cfg.Cache {
				opts = append(opts, engine.WithCache(st))
			}
		}
	}
	opts = append(opts, engine.WithEventAppender(streaming.NewPublishingAppender(a.hub, events)))
	if a.store == nil && cfg.Cache {
		opts = append(opts, engine.WithCache(engine.NewMemoryCache()))
	}

	c, err := engine.NewCompiler(a.registry, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.compiler = c
	return a, nil
}

func openStore(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	st, err := store.NewLibSQLStore("file:" + path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return st, nil
}

// trace prints every compile event to w until the returned stop is called.
func (a *app) trace(ctx context.Context, w io.Writer) (stop func()) {
	ch, cancel, err := a.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			if e.NodeID != "" {
				fmt.Fprintf(w, "%s %s %s node=%s\n", e.Timestamp.Format("15:04:05.000"), e.CompileID, e.EventType, e.NodeID)
				continue
			}
			fmt.Fprintf(w, "%s %s %s\n", e.Timestamp.Format("15:04:05.000"), e.CompileID, e.EventType)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
}
