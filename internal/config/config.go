package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atsora/pomamo-engine-sub026/internal/logger"
)

// #region getter

// Getter reads tunables by key. The default is authoritative when the key is
// absent or malformed.
type Getter interface {
	Duration(key string, def time.Duration) time.Duration
	Bool(key string, def bool) bool
}

// ErrInvalid is returned for malformed configuration values.
var ErrInvalid = errors.New("invalid configuration value")

// Map is an in-memory Getter.
type Map map[string]string

// Duration implements Getter.
func (m Map) Duration(key string, def time.Duration) time.Duration {
	raw, ok := m[key]
	return durationOr(key, raw, ok, def)
}

// Bool implements Getter.
func (m Map) Bool(key string, def bool) bool {
	raw, ok := m[key]
	return boolOr(key, raw, ok, def)
}

// #endregion getter

// #region config

// Config is the process configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Days     DaysConfig     `yaml:"days"`
	Settings map[string]any `yaml:"settings"`
}

// StoreConfig selects the raw slot store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DaysConfig describes the day boundaries.
type DaysConfig struct {
	Timezone string `yaml:"timezone"`
	Cutoff   string `yaml:"cutoff"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:    StoreConfig{Driver: "sqlite", Path: "pomamo.db"},
		Log:      logger.Config{Level: "info", Output: "stderr"},
		Settings: map[string]any{},
	}
}

// Load reads an optional .env file, the YAML file at path (skipped when path
// is empty) and the POMAMO_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Settings == nil {
			cfg.Settings = map[string]any{}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POMAMO_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("POMAMO_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("POMAMO_PG_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("POMAMO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("POMAMO_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path: %w", ErrInvalid)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("store.driver %q: %w", c.Store.Driver, ErrInvalid)
	}
	if c.Days.Cutoff != "" {
		if _, err := time.ParseDuration(c.Days.Cutoff); err != nil {
			return fmt.Errorf("days.cutoff %q: %w", c.Days.Cutoff, ErrInvalid)
		}
	}
	if c.Days.Timezone != "" {
		if _, err := time.LoadLocation(c.Days.Timezone); err != nil {
			return fmt.Errorf("days.timezone %q: %w", c.Days.Timezone, ErrInvalid)
		}
	}
	return nil
}

// Location returns the configured day timezone, UTC by default.
func (c *Config) Location() *time.Location {
	if c.Days.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Days.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayCutoff returns the configured day start offset.
func (c *Config) DayCutoff() time.Duration {
	d, _ := time.ParseDuration(c.Days.Cutoff)
	return d
}

// #endregion config

// #region lookup

// Duration implements Getter. POMAMO_SETTING_<KEY> wins over the file.
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	raw, ok := c.lookup(key)
	return durationOr(key, raw, ok, def)
}

// Bool implements Getter.
func (c *Config) Bool(key string, def bool) bool {
	raw, ok := c.lookup(key)
	return boolOr(key, raw, ok, def)
}

func (c *Config) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(EnvKey(key)); ok {
		return v, true
	}
	v, ok := c.Settings[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// EnvKey maps a dotted setting key to its environment variable name.
func EnvKey(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return "POMAMO_SETTING_" + strings.ToUpper(r.Replace(key))
}

// durationOr accepts Go durations ("90s") or plain seconds ("90").
func durationOr(key, raw string, ok bool, def time.Duration) time.Duration {
	if !ok {
		return def
	}
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	logger.Warn().Str("key", key).Str("value", raw).Dur("default", def).Msg("malformed duration setting, using default")
	return def
}

func boolOr(key, raw string, ok bool, def bool) bool {
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Bool("default", def).Msg("malformed bool setting, using default")
		return def
	}
	return b
}

// #endregion lookup
