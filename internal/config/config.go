package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// NOTE: YAML is the source of truth; PARACHUTE_* environment variables are
// applied on top after loading and are never written back by Save.

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" env:"PARACHUTE_LISTEN"`

	// DatabasePath is the SQLite file holding events and availability.
	DatabasePath string `yaml:"database_path" json:"database_path" env:"PARACHUTE_DATABASE_PATH"`

	// DefaultZone is the IANA zone used to build a zone tag when a request
	// does not carry one (e.g. "Asia/Seoul").
	DefaultZone string `yaml:"default_zone" json:"default_zone" env:"PARACHUTE_DEFAULT_ZONE"`

	// StepMinutes is the grid resolution. Supported values divide 60.
	StepMinutes int `yaml:"step_minutes" json:"step_minutes" env:"PARACHUTE_STEP_MINUTES"`

	// AlignPolicy decides what happens to instants off the grid:
	//   - "reject" (default): the save fails
	//   - "floor": the instant moves to the previous grid line
	AlignPolicy string `yaml:"align_policy" json:"align_policy" env:"PARACHUTE_ALIGN_POLICY"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"PARACHUTE_LOG_LEVEL"`

	// JoinCodeLength is the number of digits in generated join codes.
	JoinCodeLength int `yaml:"join_code_length" json:"join_code_length" env:"PARACHUTE_JOIN_CODE_LENGTH"`

	// RetentionDays is how long events are kept after their last day.
	// Zero disables purging.
	RetentionDays int `yaml:"retention_days" json:"retention_days" env:"PARACHUTE_RETENTION_DAYS"`

	// PurgeCron is a cron-style schedule string (e.g. "0 3 * * *") for the
	// retention purge.
	PurgeCron string `yaml:"purge" json:"purge" env:"PARACHUTE_PURGE_CRON"`

	// ICSCacheDir stores fetched calendar feeds for availability import.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir" env:"PARACHUTE_ICS_CACHE_DIR"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		DatabasePath:   "./var/parachute.db",
		DefaultZone:    "UTC",
		StepMinutes:    15,
		AlignPolicy:    "reject",
		LogLevel:       "info",
		JoinCodeLength: 6,
		RetentionDays:  90,
		PurgeCron:      "0 3 * * *",
		ICSCacheDir:    "./var/ics-cache",
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.DefaultZone == "" {
		c.DefaultZone = def.DefaultZone
	}
	// Only steps that divide an hour keep quarter-hour zones on the grid.
	if c.StepMinutes <= 0 || 60%c.StepMinutes != 0 {
		c.StepMinutes = def.StepMinutes
	}
	switch c.AlignPolicy {
	case "reject", "floor":
	default:
		c.AlignPolicy = def.AlignPolicy
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.JoinCodeLength < 4 || c.JoinCodeLength > 12 {
		c.JoinCodeLength = def.JoinCodeLength
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
	if c.PurgeCron == "" {
		c.PurgeCron = def.PurgeCron
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = def.ICSCacheDir
	}
}

// ApplyEnv overrides fields from PARACHUTE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - In both cases environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		cfg.Normalize()
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".parachute-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
