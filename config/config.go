package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the externally supplied configuration surface of the
// delivery engine. It is parsed and validated here, before any values
// reach a handler; handlers trust what they receive.
type Config struct {
	// Level is the minimum level emitted ("debug", "info", "warn", "error").
	Level string `yaml:"level" env:"DRIFTLOG_LEVEL" env-default:"info"`

	Queue struct {
		// Capacity is the fixed queue size.
		Capacity int `yaml:"capacity" env:"DRIFTLOG_QUEUE_CAPACITY" env-default:"1000"`
		// Policy is the overflow policy: "drop_oldest", "block", or "error".
		Policy string `yaml:"policy" env:"DRIFTLOG_QUEUE_POLICY" env-default:"drop_oldest"`
		// PutTimeout bounds a producer's wait under the block policy.
		PutTimeout time.Duration `yaml:"putTimeout" env:"DRIFTLOG_QUEUE_PUT_TIMEOUT" env-default:"100ms"`
		// GetTimeout bounds the writer's wait for the next entry.
		GetTimeout time.Duration `yaml:"getTimeout" env:"DRIFTLOG_QUEUE_GET_TIMEOUT" env-default:"500ms"`
	} `yaml:"queue"`

	// FlushInterval is how often the writer flushes the sink between
	// bursts.
	FlushInterval time.Duration `yaml:"flushInterval" env:"DRIFTLOG_FLUSH_INTERVAL" env-default:"1s"`

	Memory struct {
		// Enable turns the memory pressure check on.
		Enable bool `yaml:"enable" env:"DRIFTLOG_MEMORY_ENABLE" env-default:"true"`
		// Threshold is the used fraction above which emission degrades
		// to synchronous writes.
		Threshold float64 `yaml:"threshold" env:"DRIFTLOG_MEMORY_THRESHOLD" env-default:"0.70"`
		// CheckInterval is how long a memory sample is cached.
		CheckInterval time.Duration `yaml:"checkInterval" env:"DRIFTLOG_MEMORY_CHECK_INTERVAL" env-default:"5s"`
	} `yaml:"memory"`

	Shutdown struct {
		// FlushTimeout bounds the queue drain at close.
		FlushTimeout time.Duration `yaml:"flushTimeout" env:"DRIFTLOG_SHUTDOWN_FLUSH_TIMEOUT" env-default:"5s"`
		// CleanupTimeout bounds task cancellation and sink release.
		CleanupTimeout time.Duration `yaml:"cleanupTimeout" env:"DRIFTLOG_SHUTDOWN_CLEANUP_TIMEOUT" env-default:"5s"`
	} `yaml:"shutdown"`

	// EnableErrorTracking keeps categorized failure counts and history.
	EnableErrorTracking bool `yaml:"enableErrorTracking" env:"DRIFTLOG_ERROR_TRACKING" env-default:"true"`
	// EnableHealthMonitor serves cached health snapshots.
	EnableHealthMonitor bool `yaml:"enableHealthMonitor" env:"DRIFTLOG_HEALTH_MONITOR" env-default:"true"`
	// HealthTTL is how long a health snapshot is cached.
	HealthTTL time.Duration `yaml:"healthTTL" env:"DRIFTLOG_HEALTH_TTL" env-default:"1s"`

	File struct {
		// Path is the log file location.
		Path string `yaml:"path" env:"DRIFTLOG_FILE_PATH"`
		// MaxSize in bytes before rotation (0 disables size rotation).
		MaxSize int64 `yaml:"maxSize" env:"DRIFTLOG_FILE_MAX_SIZE"`
		// MaxBackups limits retained rotated files (0 keeps all).
		MaxBackups int `yaml:"maxBackups" env:"DRIFTLOG_FILE_MAX_BACKUPS"`
		// RotateInterval rotates on a timer (0 disables).
		RotateInterval time.Duration `yaml:"rotateInterval" env:"DRIFTLOG_FILE_ROTATE_INTERVAL"`
		// ExclusiveLock refuses to share the file with another process.
		ExclusiveLock bool `yaml:"exclusiveLock" env:"DRIFTLOG_FILE_EXCLUSIVE_LOCK"`
	} `yaml:"file"`
}

// Load reads configuration from path (YAML) with environment variable
// overrides, then validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv reads configuration from environment variables only.
func LoadEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the constraints handlers rely on.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("config: queue capacity must be at least 1, got %d", c.Queue.Capacity)
	}
	switch c.Queue.Policy {
	case "drop_oldest", "block", "error":
	default:
		return fmt.Errorf("config: unknown queue policy %q", c.Queue.Policy)
	}
	if c.Queue.PutTimeout <= 0 {
		return fmt.Errorf("config: queue put timeout must be positive, got %v", c.Queue.PutTimeout)
	}
	if c.Queue.GetTimeout <= 0 {
		return fmt.Errorf("config: queue get timeout must be positive, got %v", c.Queue.GetTimeout)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("config: flush interval must be positive, got %v", c.FlushInterval)
	}
	if c.Memory.Enable && (c.Memory.Threshold <= 0 || c.Memory.Threshold > 1) {
		return fmt.Errorf("config: memory threshold must be in (0,1], got %v", c.Memory.Threshold)
	}
	if c.Shutdown.FlushTimeout <= 0 || c.Shutdown.CleanupTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeouts must be positive")
	}
	return nil
}
