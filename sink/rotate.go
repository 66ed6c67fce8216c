package sink

import (
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingConfig configures a lumberjack-backed rotating sink.
type RotatingConfig struct {
	// Path is the log file location.
	Path string
	// MaxSizeMB is the size in megabytes before rotation (default 100).
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain (0 = keep all).
	MaxBackups int
	// MaxAgeDays is the number of days to retain rotated files (0 = keep all).
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// RotatingSink delegates rotation and retention to lumberjack. Use it
// instead of FileSink when log management conventions (gzip backups,
// age-based expiry) matter more than flush-level control.
type RotatingSink struct {
	mu sync.Mutex
	lj *lumberjack.Logger
}

// NewRotating creates a rotating sink.
func NewRotating(cfg RotatingConfig) *RotatingSink {
	return &RotatingSink{
		lj: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

// Open implements Sink. lumberjack opens lazily on first write; a
// probe write of nothing verifies the path is usable now rather than
// at the first log record.
func (s *RotatingSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.lj.Write(nil)
	return err
}

// Write implements Sink.
func (s *RotatingSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.lj.Write(p)
	return err
}

// Flush implements Sink. lumberjack writes through to the file; there
// is no engine-side buffer to push.
func (s *RotatingSink) Flush() error { return nil }

// Close implements Sink.
func (s *RotatingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lj.Close()
}

// Rotate forces an immediate rotation.
func (s *RotatingSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lj.Rotate()
}
