package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
device: webgpu
host_memory_limit: 1048576
parallel:
  enabled: false
  workers: 3
  min_chunk: 16
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, tensor.WebGPU, cfg.DeviceType())
	assert.Equal(t, int64(1<<20), cfg.HostMemoryLimit)

	p := cfg.ParallelConfig()
	assert.False(t, p.Enabled)
	assert.Equal(t, 3, p.NumWorkers)
	assert.Equal(t, 16, p.MinChunkSize)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "parallel:\n  workers: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, tensor.CPU, cfg.DeviceType())

	p := cfg.ParallelConfig()
	assert.Equal(t, 1, p.NumWorkers)
	assert.False(t, p.Enabled, "a single worker runs sequentially")
	assert.Equal(t, parallel.DefaultConfig().MinChunkSize, p.MinChunkSize)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "log_level: [",
		"bad level":    "log_level: loud",
		"bad format":   "log_format: xml",
		"bad device":   "device: tpu",
		"neg limit":    "host_memory_limit: -1",
		"neg workers":  "parallel:\n  workers: -2",
		"neg minchunk": "parallel:\n  min_chunk: -2",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	if p := Path(); p != "" {
		assert.Equal(t, "config.yaml", filepath.Base(p))
		assert.Equal(t, "tensorcore", filepath.Base(filepath.Dir(p)))
	}
}
