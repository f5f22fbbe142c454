package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tabtally/config.yaml"

// Config holds all tabtally configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Tracker TrackerConfig `yaml:"tracker"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Browser BrowserConfig `yaml:"browser"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	Backend           string `yaml:"backend"`
	SQLiteFile        string `yaml:"sqlite_file"`
	BadgerDir         string `yaml:"badger_dir"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
	KeyPrefix         string `yaml:"key_prefix"`
}

type TrackerConfig struct {
	DebounceSeconds     int    `yaml:"debounce_seconds"`
	StartupGraceSeconds int    `yaml:"startup_grace_seconds"`
	DisplayKey          string `yaml:"display_key"`
}

// DebounceWindow returns the persistence debounce window as a duration.
func (t TrackerConfig) DebounceWindow() time.Duration {
	return time.Duration(t.DebounceSeconds) * time.Second
}

// StartupGrace returns the listener attachment delay used after a browser restart.
func (t TrackerConfig) StartupGrace() time.Duration {
	return time.Duration(t.StartupGraceSeconds) * time.Second
}

type DaemonConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AuthToken      string `yaml:"auth_token"`
	MaxRequestSize int    `yaml:"max_request_size"`
}

// Addr returns the host:port the daemon listens on.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

type BrowserConfig struct {
	CDPURL string `yaml:"cdp_url"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML, or
// fails validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.KeyPrefix == "" {
		return fmt.Errorf("storage key_prefix must not be empty")
	}
	if c.Tracker.DebounceSeconds <= 0 {
		return fmt.Errorf("tracker debounce_seconds must be positive, got %d", c.Tracker.DebounceSeconds)
	}
	if c.Tracker.StartupGraceSeconds < 0 {
		return fmt.Errorf("tracker startup_grace_seconds must not be negative, got %d", c.Tracker.StartupGraceSeconds)
	}
	if !isDisplayKey(c.Tracker.DisplayKey) {
		return fmt.Errorf("unknown tracker display_key %q", c.Tracker.DisplayKey)
	}
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon port out of range: %d", c.Daemon.Port)
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// StorageDir returns the expanded storage directory.
func (c *Config) StorageDir() (string, error) {
	return ExpandPath(c.Storage.Path)
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
