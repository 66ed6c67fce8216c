package logger

import (
	"github.com/driftlog/driftlog/config"
	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/handler"
	"github.com/driftlog/driftlog/handler/consolehandler"
	"github.com/driftlog/driftlog/handler/filehandler"
	"github.com/driftlog/driftlog/queue"
)

// FromConfig builds a logger from a validated configuration: a file
// handler when a file path is configured, a console handler
// otherwise, both asynchronous. The caller owns the returned logger
// and must Close it to drain the pipeline.
func FromConfig(cfg *config.Config) (*Logger, error) {
	var (
		h   *handler.Pipeline
		err error
	)
	if cfg.File.Path != "" {
		h, err = filehandler.New(filehandler.Config{
			Path:                cfg.File.Path,
			MaxSize:             cfg.File.MaxSize,
			MaxBackups:          cfg.File.MaxBackups,
			RotateInterval:      cfg.File.RotateInterval,
			ExclusiveLock:       cfg.File.ExclusiveLock,
			QueueCapacity:       cfg.Queue.Capacity,
			Policy:              queue.ParsePolicy(cfg.Queue.Policy),
			PutTimeout:          cfg.Queue.PutTimeout,
			GetTimeout:          cfg.Queue.GetTimeout,
			FlushInterval:       cfg.FlushInterval,
			EnableMemoryMonitor: cfg.Memory.Enable,
			MemoryThreshold:     cfg.Memory.Threshold,
			MemoryCheckInterval: cfg.Memory.CheckInterval,
			EnableErrorTracking: cfg.EnableErrorTracking,
			EnableHealthMonitor: cfg.EnableHealthMonitor,
			HealthTTL:           cfg.HealthTTL,
			FlushTimeout:        cfg.Shutdown.FlushTimeout,
			CleanupTimeout:      cfg.Shutdown.CleanupTimeout,
		})
	} else {
		h, err = consolehandler.New(consolehandler.Config{
			QueueCapacity:       cfg.Queue.Capacity,
			Policy:              queue.ParsePolicy(cfg.Queue.Policy),
			PutTimeout:          cfg.Queue.PutTimeout,
			GetTimeout:          cfg.Queue.GetTimeout,
			FlushInterval:       cfg.FlushInterval,
			EnableMemoryMonitor: cfg.Memory.Enable,
			MemoryThreshold:     cfg.Memory.Threshold,
			MemoryCheckInterval: cfg.Memory.CheckInterval,
			EnableErrorTracking: cfg.EnableErrorTracking,
			EnableHealthMonitor: cfg.EnableHealthMonitor,
			HealthTTL:           cfg.HealthTTL,
			FlushTimeout:        cfg.Shutdown.FlushTimeout,
			CleanupTimeout:      cfg.Shutdown.CleanupTimeout,
		})
	}
	if err != nil {
		return nil, err
	}

	return NewBuilder().
		WithHandler(h).
		WithLevel(core.ParseLevel(cfg.Level)).
		Build(), nil
}
