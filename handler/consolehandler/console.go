package consolehandler

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/driftlog/driftlog/formatter"
	"github.com/driftlog/driftlog/handler"
	"github.com/driftlog/driftlog/queue"
	"github.com/driftlog/driftlog/sink"
)

// Config configures a console handler. The zero value logs to stdout
// in text format through the async pipeline defaults.
type Config struct {
	// Writer receives the output (default os.Stdout).
	Writer io.Writer
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
	// FlushInterval is unused for console output; the sink is
	// unbuffered.
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

// New creates an asynchronous console handler.
func New(cfg Config) (*handler.Pipeline, error) {
	return handler.NewPipeline(handler.Options{
		Name:                "console",
		Sink:                sink.NewConsole(cfg.Writer),
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
	})
}

// NewSync creates a console handler that writes on the calling
// goroutine.
func NewSync(cfg Config) (*handler.Sync, error) {
	return handler.NewSync(sink.NewConsole(cfg.Writer), cfg.Formatter)
}

// IsTerminal reports whether the configured writer is a terminal.
// Callers use it to pick a human-oriented formatter for interactive
// sessions.
func IsTerminal(w io.Writer) bool {
	return sink.NewConsole(w).IsTerminal()
}
