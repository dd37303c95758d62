// Package config loads herald's configuration: registry credentials, the
// definition folder, logging, and sync tuning. Project config overrides user
// config; environment variables override both.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/herald/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBaseURL           = "https://discord.com/api/v10"
	DefaultTimeoutSeconds    = 30
	DefaultRequestsPerSecond = 4.0
	DefaultBurst             = 4
	DefaultMaxRetries        = 1
	DefaultFanout            = 8
	DefaultWatchDebounceMS   = 750
	DefaultLogLevel          = "info"
)

// Config represents the complete herald configuration
type Config struct {
	Registry    RegistryConfig    `yaml:"registry"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sync        SyncConfig        `yaml:"sync"`
	Watch       WatchConfig       `yaml:"watch"`
}

// RegistryConfig holds the credentials and tuning for the remote registry.
type RegistryConfig struct {
	Token             string  `yaml:"token"`
	ApplicationID     string  `yaml:"application_id"`
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefinitionsConfig locates the local definition folders.
type DefinitionsConfig struct {
	// Dir is the root holding commands/ and context-menu/.
	Dir string `yaml:"dir"`
}

// LoggingConfig controls the structured run logs.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// SyncConfig tunes the reconciliation engine.
type SyncConfig struct {
	MaxRetries int `yaml:"max_retries"`
	Fanout     int `yaml:"fanout"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Registry: RegistryConfig{
			BaseURL:           DefaultBaseURL,
			TimeoutSeconds:    DefaultTimeoutSeconds,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Definitions: DefinitionsConfig{Dir: "."},
		Logging: LoggingConfig{
			Dir:   filepath.Join(home, ".herald", "logs"),
			Level: DefaultLogLevel,
		},
		Sync: SyncConfig{
			MaxRetries: DefaultMaxRetries,
			Fanout:     DefaultFanout,
		},
		Watch: WatchConfig{DebounceMS: DefaultWatchDebounceMS},
	}
}

// Load builds the effective configuration. With an explicit path only that
// file is read; otherwise the user config (~/.herald/config.yaml) is merged
// first, then the project config (./.herald/config.yaml). Environment
// variables override everything.
func Load(explicitPath string) (*Config, error) {
	cfg := DefaultConfig()

	if explicitPath != "" {
		if err := loadAndMerge(cfg, explicitPath); err != nil {
			return nil, err
		}
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".herald", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadAndMerge(cfg, userPath); err != nil {
				return nil, err
			}
		}
	}

	projectPath := filepath.Join(".herald", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadAndMerge(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "reading config file").
			WithContext("path", path)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigParse, "parsing config file").
			WithContext("path", path)
	}

	mergeConfigs(cfg, &override)
	return nil
}

// mergeConfigs merges non-zero override fields into base.
func mergeConfigs(base, override *Config) {
	if override.Registry.Token != "" {
		base.Registry.Token = override.Registry.Token
	}
	if override.Registry.ApplicationID != "" {
		base.Registry.ApplicationID = override.Registry.ApplicationID
	}
	if override.Registry.BaseURL != "" {
		base.Registry.BaseURL = override.Registry.BaseURL
	}
	if override.Registry.TimeoutSeconds > 0 {
		base.Registry.TimeoutSeconds = override.Registry.TimeoutSeconds
	}
	if override.Registry.RequestsPerSecond > 0 {
		base.Registry.RequestsPerSecond = override.Registry.RequestsPerSecond
	}
	if override.Registry.Burst > 0 {
		base.Registry.Burst = override.Registry.Burst
	}
	if override.Definitions.Dir != "" {
		base.Definitions.Dir = override.Definitions.Dir
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Sync.MaxRetries > 0 {
		base.Sync.MaxRetries = override.Sync.MaxRetries
	}
	if override.Sync.Fanout > 0 {
		base.Sync.Fanout = override.Sync.Fanout
	}
	if override.Watch.DebounceMS > 0 {
		base.Watch.DebounceMS = override.Watch.DebounceMS
	}
}

// applyEnvOverrides applies HERALD_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HERALD_TOKEN"); v != "" {
		cfg.Registry.Token = v
	}
	if v := os.Getenv("HERALD_APP_ID"); v != "" {
		cfg.Registry.ApplicationID = v
	}
	if v := os.Getenv("HERALD_BASE_URL"); v != "" {
		cfg.Registry.BaseURL = v
	}
	if v := os.Getenv("HERALD_DIR"); v != "" {
		cfg.Definitions.Dir = v
	}
	if v := os.Getenv("HERALD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HERALD_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.Fanout = n
		}
	}
}

// Validate checks that the configuration can drive a run at all. Failures
// here are fatal; nothing is retried.
func (c *Config) Validate() error {
	if c.Registry.Token == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "registry token is required (set registry.token or HERALD_TOKEN)")
	}
	if c.Registry.ApplicationID == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "application id is required (set registry.application_id or HERALD_APP_ID)")
	}
	return nil
}
