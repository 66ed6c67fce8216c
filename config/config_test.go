package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, "drop_oldest", cfg.Queue.Policy)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.PutTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.GetTimeout)
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.True(t, cfg.Memory.Enable)
	assert.InDelta(t, 0.70, cfg.Memory.Threshold, 0.001)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.FlushTimeout)
	assert.True(t, cfg.EnableErrorTracking)
	assert.True(t, cfg.EnableHealthMonitor)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("DRIFTLOG_QUEUE_CAPACITY", "64")
	t.Setenv("DRIFTLOG_QUEUE_POLICY", "block")
	t.Setenv("DRIFTLOG_MEMORY_THRESHOLD", "0.85")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Queue.Capacity)
	assert.Equal(t, "block", cfg.Queue.Policy)
	assert.InDelta(t, 0.85, cfg.Memory.Threshold, 0.001)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftlog.yaml")
	yaml := `
level: debug
queue:
  capacity: 256
  policy: error
  putTimeout: 50ms
  getTimeout: 250ms
flushInterval: 2s
file:
  path: /var/log/app.log
  maxSize: 1048576
  maxBackups: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 256, cfg.Queue.Capacity)
	assert.Equal(t, "error", cfg.Queue.Policy)
	assert.Equal(t, 50*time.Millisecond, cfg.Queue.PutTimeout)
	assert.Equal(t, "/var/log/app.log", cfg.File.Path)
	assert.Equal(t, int64(1048576), cfg.File.MaxSize)
	assert.Equal(t, 3, cfg.File.MaxBackups)
	// Unset values still carry defaults
	assert.Equal(t, 5*time.Second, cfg.Shutdown.CleanupTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadEnv()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.Queue.Capacity = 0 },
			wantErr: "capacity",
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Queue.Policy = "dropsome" },
			wantErr: "policy",
		},
		{
			name:    "negative put timeout",
			mutate:  func(c *Config) { c.Queue.PutTimeout = -time.Second },
			wantErr: "put timeout",
		},
		{
			name:    "zero get timeout",
			mutate:  func(c *Config) { c.Queue.GetTimeout = 0 },
			wantErr: "get timeout",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Memory.Threshold = 1.5 },
			wantErr: "threshold",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Shutdown.FlushTimeout = 0 },
			wantErr: "shutdown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DisabledMemorySkipsThresholdCheck(t *testing.T) {
	cfg, err := LoadEnv()
	require.NoError(t, err)

	cfg.Memory.Enable = false
	cfg.Memory.Threshold = 0
	assert.NoError(t, cfg.Validate())
}
