package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// runInstall writes settings.json from flags, filling unset flags with defaults.
func runInstall(args []string, stdout, stderr io.Writer) int {
	def := defaultConfig()
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db-path", def.DBPath, "database path")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	poolSize := fs.Int("pool-size", def.PoolSize, "parallel compile passes for batch and watch")
	separator := fs.String("separator", def.Separator, "line separator of emitted source")
	schedule := fs.String("watch-schedule", def.WatchSchedule, "5-field cron schedule for watch")
	cache := fs.Bool("cache", def.Cache, "reuse artifacts of unchanged graphs")
	pluginDir := fs.String("plugin-dir", def.PluginDir, "directory of kind pack files")
	dir := fs.String("dir", blueprintDir(), "settings directory")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		fmt.Fprintf(stderr, "Error: cannot create %s: %v\n", *dir, err)
		return exitFailure
	}

	cfg := Config{
		DBPath:        *dbPath,
		LogLevel:      *logLevel,
		PoolSize:      *poolSize,
		Separator:     *separator,
		WatchSchedule: *schedule,
		Cache:         *cache,
		PluginDir:     *pluginDir,
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := filepath.Join(*dir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: cannot write %s: %v\n", path, err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)
	return exitOK
}
