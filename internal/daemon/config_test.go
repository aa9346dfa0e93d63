package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("GENAVATOR_HOME", "/tmp/genavator-test")
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:8088", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/genavator-test", cfg.Storage.Dir)
	assert.Equal(t, "UTC", cfg.Progression.Timezone)
	assert.Len(t, cfg.Progression.Milestones, 5)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GENAVATOR_HOME", home)
	t.Setenv("GENAVATOR_DATABASE_URL", "")
	t.Setenv("GENAVATOR_REDIS_ADDR", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GENAVATOR_HOME", home)
	t.Setenv("GENAVATOR_DATABASE_URL", "")
	t.Setenv("GENAVATOR_REDIS_ADDR", "")

	data := `
[server]
port = 9000

[progression]
timezone = "Asia/Kolkata"
max_points = 250

[[progression.milestones]]
level = 3
bonus = 30

[reconciler]
interval = "30s"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, int64(250), cfg.Progression.MaxPoints)
	require.Len(t, cfg.Progression.Milestones, 1)
	assert.Equal(t, 3, cfg.Progression.Milestones[0].Level)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	d, err := cfg.ReconcileInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GENAVATOR_HOME", t.TempDir())
	t.Setenv("GENAVATOR_DATABASE_URL", "postgres://localhost/genavator")
	t.Setenv("GENAVATOR_REDIS_ADDR", "cache:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/genavator", cfg.Storage.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]func(*Config){
		"unknown driver":    func(c *Config) { c.Storage.Driver = "mongo" },
		"postgres no dsn":   func(c *Config) { c.Storage.Driver = "postgres" },
		"bad timezone":      func(c *Config) { c.Progression.Timezone = "Mars/Olympus" },
		"bad interval":      func(c *Config) { c.Reconciler.Interval = "soon" },
		"port out of range": func(c *Config) { c.Server.Port = 70000 },
		"milestone level 1": func(c *Config) { c.Progression.Milestones = append(c.Progression.Milestones, domain.Milestone{Level: 1, Bonus: 10}) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_ParseError(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GENAVATOR_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[server\nport="), 0600))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "parse config")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("GENAVATOR_HOME", t.TempDir())
	t.Setenv("GENAVATOR_DATABASE_URL", "")
	t.Setenv("GENAVATOR_REDIS_ADDR", "")

	cfg := DefaultConfig()
	cfg.Server.Port = 9999
	cfg.Progression.Timezone = "Europe/Berlin"
	require.NoError(t, SaveConfig(cfg))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, "Europe/Berlin", loaded.Progression.Timezone)
}
