// Package config loads and validates campaign configuration: the policy
// file driving the conditional workflow, the scoring weights overlay, and
// the ambient settings (paths, logging). All validation happens at load
// time, before any device is touched.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all memlab configuration.
type Config struct {
	// Campaign identity and storage locations
	Campaign CampaignConfig `yaml:"campaign"`

	// Workflow policy (thresholds, branching, final selection)
	Policy PolicyConfig `yaml:"policy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CampaignConfig names the campaign and its storage locations.
type CampaignConfig struct {
	Name string `yaml:"name"`

	// DataDir receives campaign snapshots and reports.
	DataDir string `yaml:"data_dir"`

	// SpoolDir is watched for incoming sweep files.
	SpoolDir string `yaml:"spool_dir"`

	// DatabasePath is the device registry store.
	DatabasePath string `yaml:"database_path"`

	// WeightsPath points at the scoring weights overlay; empty means
	// built-in defaults.
	WeightsPath string `yaml:"weights_path"`

	// Devices optionally pins the population; empty means discover from
	// incoming sweeps.
	Devices []string `yaml:"devices"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Campaign: CampaignConfig{
			Name:         "memlab",
			DataDir:      "data",
			SpoolDir:     "spool",
			DatabasePath: "data/memlab.db",
		},
		Policy:  DefaultPolicy(),
		Logging: LoggingConfig{Level: "warn", Format: "console"},
	}
}

// Load reads configuration from a YAML file, overlaying it onto the
// defaults so absent keys keep their documented values. A missing file is
// not an error; a malformed or invalid one is, before any device is
// tested.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the whole tree and fails on the first offense, naming
// the field. Either the entire configuration applies or none of it does.
func (c *Config) Validate() error {
	if c.Campaign.Name == "" {
		return fmt.Errorf("config: campaign.name must not be empty")
	}
	if c.Campaign.DataDir == "" {
		return fmt.Errorf("config: campaign.data_dir must not be empty")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMLAB_DB"); v != "" {
		c.Campaign.DatabasePath = v
	}
	if v := os.Getenv("MEMLAB_DATA_DIR"); v != "" {
		c.Campaign.DataDir = v
	}
	if v := os.Getenv("MEMLAB_SPOOL_DIR"); v != "" {
		c.Campaign.SpoolDir = v
	}
	if v := os.Getenv("MEMLAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// QuickTestTimeout returns the quick-test bound as a duration. Zero means
// no bound.
func (c *Config) QuickTestTimeout() time.Duration {
	if c.Policy.QuickTest.TimeoutS <= 0 {
		return 0
	}
	return time.Duration(c.Policy.QuickTest.TimeoutS * float64(time.Second))
}
