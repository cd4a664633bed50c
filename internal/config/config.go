// Package config layers defaults, a YAML config file, a .env file,
// SELECTORGEN_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/StormyCloudInc/selector-vanitygen/kernels"
)

const (
	appDirName = "selector-vanitygen"
	configFile = "config.yaml"
	storeFile  = "solutions.db"

	// EnvPrefix is prepended to every environment override, so
	// SELECTORGEN_BACKEND sets backend.
	EnvPrefix = "SELECTORGEN"
)

// Keys.
const (
	KeyBackend      = "backend"
	KeyWorkers      = "workers"
	KeyKernelPath   = "kernel_path"
	KeyStopOnFirst  = "stop_on_first"
	KeyThrottle     = "throttle"
	KeySlotCapacity = "slot_capacity"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyOutput       = "output"
	KeyStorePath    = "store_path"
	KeyNoStore      = "no_store"
	KeyProgress     = "progress"
)

// Config holds the effective settings of one invocation.
type Config struct {
	Backend      string  `mapstructure:"backend" json:"backend" yaml:"backend"`
	Workers      int     `mapstructure:"workers" json:"workers" yaml:"workers"`
	KernelPath   string  `mapstructure:"kernel_path" json:"kernel_path,omitempty" yaml:"kernel_path,omitempty"`
	StopOnFirst  bool    `mapstructure:"stop_on_first" json:"stop_on_first" yaml:"stop_on_first"`
	Throttle     float64 `mapstructure:"throttle" json:"throttle" yaml:"throttle"`
	SlotCapacity int     `mapstructure:"slot_capacity" json:"slot_capacity" yaml:"slot_capacity"`
	LogLevel     string  `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat    string  `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	Output       string  `mapstructure:"output" json:"output" yaml:"output"`
	StorePath    string  `mapstructure:"store_path" json:"store_path" yaml:"store_path"`
	NoStore      bool    `mapstructure:"no_store" json:"no_store" yaml:"no_store"`
	Progress     bool    `mapstructure:"progress" json:"progress" yaml:"progress"`

	loadedFrom string
}

// LoadedFrom is the config file that was read, or "" when none was.
func (c *Config) LoadedFrom() string { return c.loadedFrom }

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, "cpu")
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyKernelPath, "")
	v.SetDefault(KeyStopOnFirst, false)
	v.SetDefault(KeyThrottle, 0.0)
	v.SetDefault(KeySlotCapacity, 8)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyOutput, "text")
	v.SetDefault(KeyStorePath, "")
	v.SetDefault(KeyNoStore, false)
	v.SetDefault(KeyProgress, true)
}

// NewViper returns a viper instance with defaults and environment
// overrides set up. A .env file in the working directory is loaded into
// the environment first, if present.
func NewViper() *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result. An explicit
// path must exist; the default path is optional.
func Load(v *viper.Viper, explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		p, err := DefaultPath()
		if err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.loadedFrom = v.ConfigFileUsed()
	cfg.Backend = strings.ToLower(cfg.Backend)
	cfg.Output = strings.ToLower(cfg.Output)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "cpu", "opencl", "gpu":
	default:
		return fmt.Errorf("config: backend %q not one of cpu, opencl", c.Backend)
	}
	switch strings.ToLower(c.Output) {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("config: output %q not one of text, json, yaml", c.Output)
	}
	if c.Throttle < 0 {
		return fmt.Errorf("config: throttle %v must not be negative", c.Throttle)
	}
	if c.SlotCapacity < 1 || c.SlotCapacity > 1<<16 {
		return fmt.Errorf("config: slot_capacity %d out of range 1..65536", c.SlotCapacity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers %d must not be negative", c.Workers)
	}
	return nil
}

// KernelSource returns the kernel text to compile: the file at
// KernelPath when set, the embedded kernel otherwise.
func (c *Config) KernelSource() (string, error) {
	if c.KernelPath == "" {
		return kernels.Keccak256, nil
	}
	data, err := os.ReadFile(c.KernelPath)
	if err != nil {
		return "", fmt.Errorf("failed to read kernel: %w", err)
	}
	return string(data), nil
}

// ResolvedStorePath returns StorePath, or the default ledger location in
// the user config directory, creating that directory.
func (c *Config) ResolvedStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, storeFile), nil
}

// DefaultPath is the config file location in the user config directory.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Dir is this application's directory under the user config directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}
