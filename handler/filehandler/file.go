package filehandler

import (
	"time"

	"go.uber.org/zap"

	"github.com/driftlog/driftlog/formatter"
	"github.com/driftlog/driftlog/handler"
	"github.com/driftlog/driftlog/queue"
	"github.com/driftlog/driftlog/sink"
)

// Config configures a file handler.
type Config struct {
	// Path is the log file location. Parent directories are created.
	Path string
	// BufferSize is the file buffer size in bytes (default 4096).
	BufferSize int
	// MaxSize rotates the file when it exceeds this many bytes
	// (0 = no size rotation).
	MaxSize int64
	// MaxAge rotates the file when it gets older than this
	// (0 = no age rotation).
	MaxAge time.Duration
	// MaxBackups caps how many rotated files are retained
	// (0 = keep all).
	MaxBackups int
	// RotateInterval rotates on a fixed schedule (0 = off).
	RotateInterval time.Duration
	// ExclusiveLock takes a file lock so a second process cannot
	// interleave writes into the same log file.
	ExclusiveLock bool

	// Formatter renders records (default text).
	Formatter formatter.Formatter

	// QueueCapacity bounds the async buffer (default 1000).
	QueueCapacity int
	// Policy decides what a full queue does (default DropOldest).
	Policy queue.Policy
	// PutTimeout bounds a blocked emission (default 100ms).
	PutTimeout time.Duration
	// GetTimeout bounds the writer's wait for the next entry
	// (default 500ms).
	GetTimeout time.Duration
	// FlushInterval is how often buffered bytes are forced to disk
	// while records keep arriving (default 1s).
	FlushInterval time.Duration

	// EnableMemoryMonitor degrades to synchronous writes under
	// process memory pressure.
	EnableMemoryMonitor bool
	// MemoryThreshold is the used-memory fraction above which the
	// monitor reports pressure (default 0.70).
	MemoryThreshold float64
	// MemoryCheckInterval is how long a memory sample is cached
	// (default 5s).
	MemoryCheckInterval time.Duration
	// EnableErrorTracking keeps categorized delivery error counts.
	EnableErrorTracking bool
	// EnableHealthMonitor serves cached health snapshots.
	EnableHealthMonitor bool
	// HealthTTL is how long a health snapshot is cached (default 1s).
	HealthTTL time.Duration

	// FlushTimeout and CleanupTimeout bound the shutdown phases
	// (default 5s each).
	FlushTimeout   time.Duration
	CleanupTimeout time.Duration

	// Log receives pipeline diagnostics. May be nil.
	Log *zap.Logger
}

func (cfg Config) fileSink() *sink.FileSink {
	return sink.NewFile(sink.FileConfig{
		Path:           cfg.Path,
		BufferSize:     cfg.BufferSize,
		MaxSize:        cfg.MaxSize,
		MaxAge:         cfg.MaxAge,
		MaxBackups:     cfg.MaxBackups,
		RotateInterval: cfg.RotateInterval,
		ExclusiveLock:  cfg.ExclusiveLock,
	})
}

func (cfg Config) pipelineOptions(s sink.Sink) handler.Options {
	return handler.Options{
		Name:                "file",
		Sink:                s,
		Formatter:           cfg.Formatter,
		QueueCapacity:       cfg.QueueCapacity,
		Policy:              cfg.Policy,
		PutTimeout:          cfg.PutTimeout,
		GetTimeout:          cfg.GetTimeout,
		FlushInterval:       cfg.FlushInterval,
		EnableMemoryMonitor: cfg.EnableMemoryMonitor,
		MemoryThreshold:     cfg.MemoryThreshold,
		MemoryCheckInterval: cfg.MemoryCheckInterval,
		EnableErrorTracking: cfg.EnableErrorTracking,
		EnableHealthMonitor: cfg.EnableHealthMonitor,
		HealthTTL:           cfg.HealthTTL,
		FlushTimeout:        cfg.FlushTimeout,
		CleanupTimeout:      cfg.CleanupTimeout,
		Log:                 cfg.Log,
	}
}

// New creates an asynchronous file handler with native rotation.
func New(cfg Config) (*handler.Pipeline, error) {
	return handler.NewPipeline(cfg.pipelineOptions(cfg.fileSink()))
}

// NewSync creates a file handler that writes and flushes on the
// calling goroutine.
func NewSync(cfg Config) (*handler.Sync, error) {
	return handler.NewSync(cfg.fileSink(), cfg.Formatter)
}

// NewRotating creates an asynchronous file handler whose rotation and
// retention are delegated to lumberjack, including gzip compression of
// rotated files. Use it when log management conventions matter more
// than flush-level control.
func NewRotating(cfg Config, rot sink.RotatingConfig) (*handler.Pipeline, error) {
	if rot.Path == "" {
		rot.Path = cfg.Path
	}
	return handler.NewPipeline(cfg.pipelineOptions(sink.NewRotating(rot)))
}
