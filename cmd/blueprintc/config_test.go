package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfigFrom(filepath.Join(t.TempDir(), "missing.json"), envOf(nil))
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "\n", cfg.Separator)
	assert.True(t, cfg.Cache)
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "db_path": "/data/bp.db",
  "log_level": "debug",
  "pool_size": 8,
  "cache": false
}`), 0o644))

	tests := []struct {
		name string
		env  map[string]string
		want func(*Config)
	}{
		{
			name: "settings only",
			want: func(c *Config) {
				c.DBPath = "/data/bp.db"
				c.LogLevel = "debug"
				c.PoolSize = 8
				c.Cache = false
			},
		},
		{
			name: "env wins",
			env: map[string]string{
				"BLUEPRINT_DB_PATH":        "/tmp/override.db",
				"BLUEPRINT_POOL_SIZE":      "2",
				"BLUEPRINT_CACHE":          "true",
				"BLUEPRINT_SEPARATOR":      `\r\n`,
				"BLUEPRINT_WATCH_SCHEDULE": "*/5 * * * *",
			},
			want: func(c *Config) {
				c.DBPath = "/tmp/override.db"
				c.LogLevel = "debug"
				c.PoolSize = 2
				c.Cache = true
				c.Separator = "\r\n"
				c.WatchSchedule = "*/5 * * * *"
			},
		},
		{
			name: "bad pool size ignored",
			env:  map[string]string{"BLUEPRINT_POOL_SIZE": "many"},
			want: func(c *Config) {
				c.DBPath = "/data/bp.db"
				c.LogLevel = "debug"
				c.PoolSize = 8
				c.Cache = false
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := defaultConfig()
			tc.want(&want)
			assert.Equal(t, want, loadConfigFrom(path, envOf(tc.env)))
		})
	}
}

func TestLoadConfig_Clamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pool_size": -3, "separator": ""}`), 0o644))

	cfg := loadConfigFrom(path, envOf(nil))
	assert.Equal(t, 1, cfg.PoolSize)
	assert.Equal(t, "\n", cfg.Separator)
}

func TestLoadConfig_MalformedSettingsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	assert.Equal(t, defaultConfig(), loadConfigFrom(path, envOf(nil)))
}
