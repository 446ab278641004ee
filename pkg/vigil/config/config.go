package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// EnvPrefix prefixes environment overrides, e.g. VIGIL_MANIFEST_PATH.
const EnvPrefix = "VIGIL"

// RotationConfig holds rotation settings as written in YAML; MaxSize is a size string like "10MB".
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig is the logging section.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ManifestConfig locates the manifest.
type ManifestConfig struct {
	Path         string `mapstructure:"path"`
	BackupSuffix string `mapstructure:"backup_suffix"`
}

// WalkerConfig controls tree enumeration.
type WalkerConfig struct {
	Exclude    []string `mapstructure:"exclude"`
	IgnoreFile string   `mapstructure:"ignore_file"`
	Symlinks   string   `mapstructure:"symlinks"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config is the decoded vigil configuration.
type Config struct {
	Manifest ManifestConfig `mapstructure:"manifest"`
	Digest   struct {
		ChunkSize string `mapstructure:"chunk_size"`
	} `mapstructure:"digest"`
	// Workers bounds concurrent digests. Zero sizes the pool from the
	// machine.
	Workers int          `mapstructure:"workers"`
	Walker  WalkerConfig `mapstructure:"walker"`
	Report  struct {
		Format string `mapstructure:"format"`
		Strict bool   `mapstructure:"strict"`
	} `mapstructure:"report"`
	History HistoryConfig `mapstructure:"history"`
	Metrics struct {
		// File receives Prometheus textfile metrics. Empty disables them.
		File string `mapstructure:"file"`
	} `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Defaults registers every default value on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("manifest.path", DefaultManifestPath)
	v.SetDefault("manifest.backup_suffix", DefaultBackupSuffix)
	v.SetDefault("digest.chunk_size", DefaultChunkSize)
	v.SetDefault("workers", 0)
	v.SetDefault("walker.exclude", DefaultExclusions)
	v.SetDefault("walker.ignore_file", DefaultIgnoreFile)
	v.SetDefault("walker.symlinks", DefaultSymlinks)
	v.SetDefault("report.format", DefaultReportFormat)
	v.SetDefault("report.strict", false)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means use DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)
	v.SetDefault("metrics.file", "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"reconciler": "info",
		"manifest":   "info",
		"cli":        "info",
	})
}

// NewViper returns a viper instance with defaults, environment overrides
// and the config file loaded. When file is empty the standard locations
// are searched:
//   - $XDG_CONFIG_HOME/vigil/config.yaml
//   - $HOME/.config/vigil/config.yaml
//
// A missing config file is not an error; an unreadable one is.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	Defaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Manifest.Path, err = ExpandPath(cfg.Manifest.Path); err != nil {
		return nil, err
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Metrics.File, err = ExpandPath(cfg.Metrics.File); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configuration from file (or the standard locations) and
// the environment.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var symlinkPolicies = []string{"skip", "follow", "hash"}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Manifest.Path == "" {
		return fmt.Errorf("%w: manifest.path is empty", ErrInvalid)
	}
	if c.Manifest.BackupSuffix == "" {
		return fmt.Errorf("%w: manifest.backup_suffix is empty", ErrInvalid)
	}
	if _, err := c.ChunkSize(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", ErrInvalid)
	}
	if !slices.Contains(symlinkPolicies, c.Walker.Symlinks) {
		return fmt.Errorf("%w: walker.symlinks must be one of %s", ErrInvalid, strings.Join(symlinkPolicies, ", "))
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("%w: history.retention_days cannot be negative", ErrInvalid)
	}
	return nil
}

// ChunkSize returns digest.chunk_size in bytes.
func (c *Config) ChunkSize() (int, error) {
	n, err := types.ParseSize(c.Digest.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("%w: digest.chunk_size %q: %v", ErrInvalid, c.Digest.ChunkSize, err)
	}
	if n <= 0 || n > 64*types.MiB {
		return 0, fmt.Errorf("%w: digest.chunk_size must be between 1B and 64MiB", ErrInvalid)
	}
	return int(n), nil
}

// HistoryPath returns the history database directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

// ConfigDir returns the configuration directory: $XDG_CONFIG_HOME/vigil, or
// ~/.config/vigil when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "vigil"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vigil"), nil
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/vigil/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "vigil")
}

// StateDir returns $XDG_STATE_HOME/vigil/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "vigil")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLogPath is where the log file goes when logging.path is unset.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "vigil.log")
}

// WriteDefault writes a default config file to path unless one exists. It
// reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

func defaultConfigYAML() string {
	return fmt.Sprintf(`# vigil file integrity checker configuration

manifest:
  # Manifest location; relative paths resolve against the working directory
  path: %s
  # Suffix of the previous manifest generation
  backup_suffix: %s

digest:
  # Read buffer used while hashing
  chunk_size: %s

# Concurrent digests (0 = size from CPU count)
workers: 0

walker:
  # Glob patterns (doublestar syntax) left out of every walk
  exclude:
    - .git
  # Gitignore-style file read from the root of the walked tree
  ignore_file: %s
  # Symlink policy: skip, follow or hash
  symlinks: %s

report:
  # Output format: text, plain, json, yaml, pretty
  format: %s
  # Count missing and untracked files as changes
  strict: false

history:
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/vigil/history
  path: ""
  retention_days: %d

metrics:
  # Prometheus textfile output; empty disables it
  file: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means use default: $XDG_STATE_HOME/vigil/vigil.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    reconciler: info
    manifest: info
    cli: info
`, DefaultManifestPath, DefaultBackupSuffix, DefaultChunkSize, DefaultIgnoreFile,
		DefaultSymlinks, DefaultReportFormat, DefaultRetentionDays)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
