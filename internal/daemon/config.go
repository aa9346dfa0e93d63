// Package daemon manages the Genavator daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // progression.timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/logging"
)

// Config holds all daemon configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Redis       RedisConfig       `toml:"redis"`
	Progression ProgressionConfig `toml:"progression"`
	Reconciler  ReconcilerConfig  `toml:"reconciler"`
	Logging     logging.Config    `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	Dir    string `toml:"dir"`    // sqlite data dir
	DSN    string `toml:"dsn"`    // postgres URL
}

// RedisConfig controls the leaderboard cache.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// ProgressionConfig tunes the engine.
type ProgressionConfig struct {
	Timezone    string             `toml:"timezone"`
	MaxPoints   int64              `toml:"max_points"`
	CatalogFile string             `toml:"catalog_file"`
	CASAttempts int                `toml:"cas_attempts"`
	Milestones  []domain.Milestone `toml:"milestones"`
}

// ReconcilerConfig controls the background rescan job.
type ReconcilerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
	Batch    int    `toml:"batch"`
}

// TelemetryConfig toggles observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
	Tracing    bool `toml:"tracing"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	home := genavatorHome()
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8088,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Dir:    home,
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Prefix: "genavator",
		},
		Progression: ProgressionConfig{
			Timezone:    "UTC",
			MaxPoints:   progression.DefaultMaxPoints,
			CASAttempts: progression.DefaultCASAttempts,
			Milestones:  progression.DefaultMilestones(),
		},
		Reconciler: ReconcilerConfig{
			Enabled:  true,
			Interval: "5m",
			Batch:    100,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $GENAVATOR_HOME/config.toml, falling back to defaults,
// then applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(genavatorHome(), "config.toml"))
}

// LoadConfigFile is LoadConfig for an explicit path.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("GENAVATOR_DATABASE_URL"); dsn != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = dsn
	}
	if addr := os.Getenv("GENAVATOR_REDIS_ADDR"); addr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want sqlite or postgres", c.Storage.Driver))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ReconcileInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	for _, m := range c.Progression.Milestones {
		if m.Level < 2 || m.Bonus < 0 {
			errs = append(errs, fmt.Errorf("milestone level %d bonus %d: invalid", m.Level, m.Bonus))
		}
	}
	return errors.Join(errs...)
}

// Location resolves progression.timezone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Progression.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("progression.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ReconcileInterval parses reconciler.interval.
func (c Config) ReconcileInterval() (time.Duration, error) {
	if c.Reconciler.Interval == "" {
		return 5 * time.Minute, nil
	}
	d, err := time.ParseDuration(c.Reconciler.Interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("reconciler.interval %q: must be a positive duration", c.Reconciler.Interval)
	}
	return d, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SaveConfig writes the config to $GENAVATOR_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(genavatorHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// genavatorHome returns the data directory.
func genavatorHome() string {
	if env := os.Getenv("GENAVATOR_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".genavator")
}

// Home is exported for use by other packages.
func Home() string {
	return genavatorHome()
}
