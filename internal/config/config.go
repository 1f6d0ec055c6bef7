// Package config loads the runtime configuration file
// (~/.config/tensorcore/config.yaml by default).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/tensorcore/internal/logger"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Config is the runtime configuration. Zero values fall back to defaults.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Device is the default placement for tensors created by the CLI,
	// e.g. "cpu" or "webgpu".
	Device string `yaml:"device"`

	// HostMemoryLimit caps live host allocations in bytes. Zero is unlimited.
	HostMemoryLimit int64 `yaml:"host_memory_limit"`

	Parallel Parallel `yaml:"parallel"`
}

// Parallel configures kernel loop parallelism.
type Parallel struct {
	Enabled  *bool `yaml:"enabled"`
	Workers  int   `yaml:"workers"`
	MinChunk int   `yaml:"min_chunk"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: string(logger.FormatPretty),
		Device:    "cpu",
	}
}

// Path returns the default config file location, or "" if the user config
// directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tensorcore", "config.yaml")
}

// Load reads the config file at path over the defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no component can honor.
func (c Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch logger.Format(c.LogFormat) {
	case logger.FormatPretty, logger.FormatText, logger.FormatJSON, "":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := tensor.ParseDeviceType(c.Device); err != nil {
		return err
	}
	if c.HostMemoryLimit < 0 {
		return fmt.Errorf("host_memory_limit must be >= 0, got %d", c.HostMemoryLimit)
	}
	if c.Parallel.Workers < 0 {
		return fmt.Errorf("parallel.workers must be >= 0, got %d", c.Parallel.Workers)
	}
	if c.Parallel.MinChunk < 0 {
		return fmt.Errorf("parallel.min_chunk must be >= 0, got %d", c.Parallel.MinChunk)
	}
	return nil
}

// DeviceType returns the parsed default device type.
func (c Config) DeviceType() tensor.DeviceType {
	dt, _ := tensor.ParseDeviceType(c.Device)
	return dt
}

// ParallelConfig merges the file settings over parallel.DefaultConfig.
func (c Config) ParallelConfig() parallel.Config {
	p := parallel.DefaultConfig()
	if c.Parallel.Enabled != nil {
		p.Enabled = *c.Parallel.Enabled
	}
	if c.Parallel.Workers > 0 {
		p.NumWorkers = c.Parallel.Workers
		if c.Parallel.Enabled == nil {
			p.Enabled = c.Parallel.Workers > 1
		}
	}
	if c.Parallel.MinChunk > 0 {
		p.MinChunkSize = c.Parallel.MinChunk
	}
	return p
}
