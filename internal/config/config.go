package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the workspace configuration.
const (
	DefaultCampaign          = 1
	DefaultRecomputeInterval = 5 * time.Minute
	DefaultListenAddr        = "127.0.0.1:8080"
	DefaultLogLevel          = "info"
)

// Config holds the settings read from config.yml in the workspace.
type Config struct {
	// Campaign is the campaign the daemon recomputes on its timer.
	Campaign int64 `yaml:"campaign"`

	// RecomputeInterval is the period of the full recompute timer (default 5m).
	RecomputeInterval time.Duration `yaml:"recompute_interval"`

	// ListenAddr is the address the HTTP surface binds to.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// MemoryScores keeps computed scores in memory instead of data/scores.sqlite.
	MemoryScores bool `yaml:"memory_scores"`
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Campaign:          DefaultCampaign,
		RecomputeInterval: DefaultRecomputeInterval,
		ListenAddr:        DefaultListenAddr,
		LogLevel:          DefaultLogLevel,
	}
}

// Load reads config.yml at path. A missing file yields the defaults. Environment
// overrides (SALESPORTAL_CAMPAIGN, SALESPORTAL_RECOMPUTE_INTERVAL,
// SALESPORTAL_LISTEN_ADDR, SALESPORTAL_LOG_LEVEL) are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Campaign <= 0 {
		return fmt.Errorf("campaign must be positive, got %d", c.Campaign)
	}
	if c.RecomputeInterval < time.Second {
		return fmt.Errorf("recompute_interval must be at least 1s, got %s", c.RecomputeInterval)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", value)
	}
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func applyEnv(cfg *Config) error {
	if v := envOr("SALESPORTAL_CAMPAIGN", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SALESPORTAL_CAMPAIGN: %w", err)
		}
		cfg.Campaign = n
	}
	if v := envOr("SALESPORTAL_RECOMPUTE_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SALESPORTAL_RECOMPUTE_INTERVAL: %w", err)
		}
		cfg.RecomputeInterval = d
	}
	cfg.ListenAddr = envOr("SALESPORTAL_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = envOr("SALESPORTAL_LOG_LEVEL", cfg.LogLevel)
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
