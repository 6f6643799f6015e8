// Package config loads and validates fitcore's YAML configuration,
// mirroring the load/defaults/validate shape of the teacher's own
// config package.
package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config is the complete fitcore configuration (spec §6's configuration
// table, plus signing/storage fields the outer shell supplies).
type Config struct {
	Identity Identity `yaml:"identity"`
	Pool     Pool     `yaml:"pool"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
}

// Identity holds the caller's signing identity. Nsec is never read from
// the config file itself — only from the FITCORE_NSEC environment
// variable — so a checked-in config can never leak a private key.
type Identity struct {
	Npub string `yaml:"npub"`
	Nsec string `yaml:"-"`
}

// Pool mirrors spec §6's configuration table exactly.
type Pool struct {
	DefaultRelays          []string `yaml:"default_relays"`
	ConnectionTimeoutMs    int      `yaml:"connection_timeout_ms"`
	PingIntervalMs         int      `yaml:"ping_interval_ms"`
	ReconnectDelayMs       int      `yaml:"reconnect_delay_ms"`
	MaxReconnectAttempts   int      `yaml:"max_reconnect_attempts"`
	PublishDeadlineMs      int      `yaml:"publish_deadline_ms"`
	SubscriptionDeadlineMs int      `yaml:"subscription_deadline_ms"`
	MinRelaysForEOSE       int      `yaml:"min_relays_for_eose"`
}

// Storage configures the persistent key/value cache collaborator.
type Storage struct {
	CachePath string `yaml:"cache_path"`
}

// Logging controls the slog handler (internal/ops).
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Load reads and parses path, applies defaults, then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if nsec := os.Getenv("FITCORE_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}
	if path := os.Getenv("FITCORE_CACHE_PATH"); path != "" {
		cfg.Storage.CachePath = path
	}
}

// Default returns a configuration with the defaults named in spec §4.B
// and §4.C (10s connect timeout, 30s ping, 1s base backoff).
func Default() *Config {
	return &Config{
		Pool: Pool{
			ConnectionTimeoutMs:    10_000,
			PingIntervalMs:         30_000,
			ReconnectDelayMs:       1_000,
			MaxReconnectAttempts:   3,
			PublishDeadlineMs:      5_000,
			SubscriptionDeadlineMs: 4_000,
			MinRelaysForEOSE:       2,
		},
		Storage: Storage{
			CachePath: "fitcore.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks field ranges that would otherwise surface as confusing
// runtime failures deep in the pool or publish engine.
func Validate(cfg *Config) error {
	if cfg.Pool.ConnectionTimeoutMs <= 0 {
		return fmt.Errorf("config: pool.connection_timeout_ms must be positive")
	}
	if cfg.Pool.PingIntervalMs <= 0 {
		return fmt.Errorf("config: pool.ping_interval_ms must be positive")
	}
	if cfg.Pool.ReconnectDelayMs <= 0 {
		return fmt.Errorf("config: pool.reconnect_delay_ms must be positive")
	}
	if cfg.Pool.MinRelaysForEOSE <= 0 {
		return fmt.Errorf("config: pool.min_relays_for_eose must be positive")
	}
	if cfg.Storage.CachePath == "" {
		return fmt.Errorf("config: storage.cache_path must be set")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}

// GetExampleConfig returns the embedded example configuration, for
// `fitcore init`-style scaffolding in the outer shell.
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// ConnectionTimeout returns the pool's connect timeout as a Duration.
func (p Pool) ConnectionTimeout() time.Duration {
	return time.Duration(p.ConnectionTimeoutMs) * time.Millisecond
}

// PingInterval returns the pool's ping interval as a Duration.
func (p Pool) PingInterval() time.Duration {
	return time.Duration(p.PingIntervalMs) * time.Millisecond
}

// ReconnectDelay returns the pool's base backoff as a Duration.
func (p Pool) ReconnectDelay() time.Duration {
	return time.Duration(p.ReconnectDelayMs) * time.Millisecond
}

// PublishDeadline returns the publish-ack deadline as a Duration.
func (p Pool) PublishDeadline() time.Duration {
	return time.Duration(p.PublishDeadlineMs) * time.Millisecond
}

// SubscriptionDeadline returns the default subscription ceiling as a Duration.
func (p Pool) SubscriptionDeadline() time.Duration {
	return time.Duration(p.SubscriptionDeadlineMs) * time.Millisecond
}
