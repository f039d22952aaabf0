// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// Duration is a time.Duration that round-trips through YAML as a string
// like "30s" or "5m"
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all snapsafe settings for one workspace
type Config struct {
	Checkpoints CheckpointConfig `yaml:"checkpoints"`
	Executor    ExecutorConfig   `yaml:"executor"`
	Logging     LoggingConfig    `yaml:"logging"`

	// Resolved paths, not persisted
	Root        string `yaml:"-"`
	SnapsafeDir string `yaml:"-"`
	HistoryPath string `yaml:"-"`
	LogDir      string `yaml:"-"`
}

// CheckpointConfig controls the snapshot store
type CheckpointConfig struct {
	MaxCheckpoints    int      `yaml:"max_checkpoints"`
	Concurrency       int      `yaml:"concurrency"`
	MaxBytes          int64    `yaml:"max_bytes"`
	RetentionInterval Duration `yaml:"retention_interval"`
	WatchIndex        bool     `yaml:"watch_index"`
	IndexDebounce     Duration `yaml:"index_debounce"`
}

// ExecutorConfig controls transactional execution
type ExecutorConfig struct {
	Policy      string   `yaml:"policy"`
	StepTimeout Duration `yaml:"step_timeout"`
	MaxRetries  int      `yaml:"max_retries"`
	RetryDelay  Duration `yaml:"retry_delay"`
}

// LoggingConfig controls the rotating log sink
type LoggingConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	return &Config{
		Checkpoints: CheckpointConfig{
			MaxCheckpoints:    50,
			Concurrency:       4,
			MaxBytes:          100 * 1024 * 1024,
			RetentionInterval: Duration(5 * time.Minute),
			WatchIndex:        false,
			IndexDebounce:     Duration(500 * time.Millisecond),
		},
		Executor: ExecutorConfig{
			Policy:      "whole_transaction",
			StepTimeout: Duration(2 * time.Minute),
			MaxRetries:  3,
			RetryDelay:  Duration(time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// Load resolves paths under root, ensures the snapsafe directories exist,
// and merges the workspace config file over the defaults when present
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Root = abs
	cfg.SnapsafeDir = filepath.Join(abs, ".snapsafe")
	cfg.HistoryPath = filepath.Join(cfg.SnapsafeDir, "history.db")
	cfg.LogDir = filepath.Join(cfg.SnapsafeDir, "logs")

	// Ensure directories exist
	for _, dir := range []string{cfg.SnapsafeDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(cfg.Path())
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfg.Path(), err)
	}
	return cfg, cfg.validate()
}

// Save writes the configuration to the workspace config file
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path(), data, 0644)
}

// Path returns the location of the workspace config file
func (c *Config) Path() string {
	return filepath.Join(c.SnapsafeDir, fileName)
}

// LogPath returns the location of the rotating log file
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir, "snapsafe.log")
}

func (c *Config) validate() error {
	if c.Checkpoints.MaxCheckpoints < 1 {
		return fmt.Errorf("checkpoints.max_checkpoints must be at least 1, got %d", c.Checkpoints.MaxCheckpoints)
	}
	if c.Checkpoints.Concurrency < 1 {
		return fmt.Errorf("checkpoints.concurrency must be at least 1, got %d", c.Checkpoints.Concurrency)
	}
	switch c.Executor.Policy {
	case "whole_transaction", "partial":
	default:
		return fmt.Errorf("executor.policy must be whole_transaction or partial, got %q", c.Executor.Policy)
	}
	if c.Executor.MaxRetries < 1 {
		return fmt.Errorf("executor.max_retries must be at least 1, got %d", c.Executor.MaxRetries)
	}
	return nil
}
