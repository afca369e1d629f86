package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all blueprintc configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	PoolSize      int    `json:"pool_size"`
	Separator     string `json:"separator"`
	WatchSchedule string `json:"watch_schedule"`
	Cache         bool   `json:"cache"`
	PluginDir     string `json:"plugin_dir"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(blueprintDir(), "blueprint.db"),
		LogLevel:      "info",
		PoolSize:      4,
		Separator:     "\n",
		WatchSchedule: "* * * * *",
		Cache:         true,
		PluginDir:     filepath.Join(blueprintDir(), "kinds"),
	}
}

func blueprintDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blueprint"
	}
	return filepath.Join(home, ".blueprint")
}

func settingsPath() string {
	return filepath.Join(blueprintDir(), "settings.json")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := getenv("BLUEPRINT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("BLUEPRINT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("BLUEPRINT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := getenv("BLUEPRINT_SEPARATOR"); v != "" {
		if unq, err := strconv.Unquote(`"` + v + `"`); err == nil {
			cfg.Separator = unq
		}
	}
	if v := getenv("BLUEPRINT_WATCH_SCHEDULE"); v != "" {
		cfg.WatchSchedule = v
	}
	if v := getenv("BLUEPRINT_PLUGIN_DIR"); v != "" {
		cfg.PluginDir = v
	}
	if v := getenv("BLUEPRINT_CACHE"); v != "" {
		cfg.Cache = v == "true" || v == "1"
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.Separator == "" {
		cfg.Separator = "\n"
	}
	return cfg
}
