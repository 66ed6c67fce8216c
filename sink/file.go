package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
)

// FileConfig configures a FileSink.
type FileConfig struct {
	// Path is the log file location. Parent directories are created.
	Path string
	// BufferSize is the bufio writer size (default 4096).
	BufferSize int
	// MaxSize is the maximum size in bytes before rotation (0 = no size rotation)
	MaxSize int64
	// MaxAge is the maximum age before rotation (0 = no age rotation)
	MaxAge time.Duration
	// MaxBackups is the maximum number of rotated files to retain (0 = keep all)
	MaxBackups int
	// RotateInterval is the interval for time-based rotation (0 = no interval rotation)
	RotateInterval time.Duration
	// ExclusiveLock takes a flock on a sidecar lock file so a second
	// process cannot interleave writes into the same log file.
	ExclusiveLock bool
}

// FileSink writes payloads to a file through a buffered writer, with
// rotation by size, age, or interval and cleanup of old backups.
type FileSink struct {
	cfg FileConfig

	mu             sync.Mutex
	file           *os.File
	bufWriter      *bufio.Writer
	lock           *flock.Flock
	currentSize    int64
	lastRotateTime time.Time
	hasRotation    bool
	opened         bool
	closed         bool
}

// NewFile creates a file sink. The file is not touched until Open.
func NewFile(cfg FileConfig) *FileSink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	return &FileSink{
		cfg:         cfg,
		hasRotation: cfg.MaxSize > 0 || cfg.MaxAge > 0 || cfg.RotateInterval > 0,
	}
}

// Open creates the directory, takes the optional file lock, and opens
// the file for appending.
func (s *FileSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}
	if s.cfg.Path == "" {
		return fmt.Errorf("sink: filename is required")
	}

	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if s.cfg.ExclusiveLock {
		lock := flock.New(s.cfg.Path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("sink: lock %s: %w", s.cfg.Path+".lock", err)
		}
		if !locked {
			return fmt.Errorf("sink: %s is locked by another process", s.cfg.Path)
		}
		s.lock = lock
	}

	file, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		if s.lock != nil {
			_ = s.lock.Unlock()
		}
		return err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		if s.lock != nil {
			_ = s.lock.Unlock()
		}
		return err
	}

	s.file = file
	s.bufWriter = bufio.NewWriterSize(file, s.cfg.BufferSize)
	s.currentSize = info.Size()
	s.lastRotateTime = time.Now()
	s.opened = true
	s.closed = false
	return nil
}

// Write appends one payload, rotating first when a rotation condition
// holds.
func (s *FileSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.closed {
		return os.ErrClosed
	}
	if err := s.rotateIfNeeded(); err != nil {
		return err
	}

	n, err := s.bufWriter.Write(p)
	s.currentSize += int64(n)
	return err
}

// Flush pushes the write buffer down to the file.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.closed {
		return nil
	}
	return s.bufWriter.Flush()
}

// Close flushes, syncs, closes the file, and releases the lock.
// A second Close is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.closed {
		return nil
	}
	s.closed = true

	var err error
	err = multierr.Append(err, s.bufWriter.Flush())
	err = multierr.Append(err, s.file.Sync())
	err = multierr.Append(err, s.file.Close())
	if s.lock != nil {
		err = multierr.Append(err, s.lock.Unlock())
		s.lock = nil
	}
	s.file = nil
	return err
}

// Size returns the current file size including buffered bytes.
func (s *FileSink) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// rotateIfNeeded checks rotation conditions; caller holds the lock.
func (s *FileSink) rotateIfNeeded() error {
	if !s.hasRotation {
		return nil
	}

	needRotate := false
	if s.cfg.MaxSize > 0 && s.currentSize >= s.cfg.MaxSize {
		needRotate = true
	}
	if s.cfg.MaxAge > 0 && time.Since(s.lastRotateTime) >= s.cfg.MaxAge {
		needRotate = true
	}
	if s.cfg.RotateInterval > 0 && time.Since(s.lastRotateTime) >= s.cfg.RotateInterval {
		needRotate = true
	}
	if !needRotate {
		return nil
	}
	return s.rotate()
}

// rotate renames the current file with a timestamp suffix and reopens
// a fresh one; caller holds the lock.
func (s *FileSink) rotate() error {
	if err := s.bufWriter.Flush(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	rotatedName := fmt.Sprintf("%s.%s", s.cfg.Path, timestamp)

	if err := os.Rename(s.cfg.Path, rotatedName); err != nil {
		// Rename failed; reopen the original so writing can continue
		file, openErr := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if openErr != nil {
			return fmt.Errorf("rotation failed: %v, reopen failed: %v", err, openErr)
		}
		s.file = file
		s.bufWriter.Reset(file)
		return err
	}

	if s.cfg.MaxBackups > 0 {
		s.cleanupOldBackups()
	}

	file, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	s.file = file
	s.bufWriter.Reset(file)
	s.currentSize = 0
	s.lastRotateTime = time.Now()
	return nil
}

// cleanupOldBackups removes rotated files beyond MaxBackups, oldest
// first.
func (s *FileSink) cleanupOldBackups() {
	dir := filepath.Dir(s.cfg.Path)
	base := filepath.Base(s.cfg.Path)

	pattern := filepath.Join(dir, base+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	var backups []string
	for _, match := range matches {
		name := filepath.Base(match)
		if strings.HasPrefix(name, base+".") && !strings.HasSuffix(name, ".lock") {
			backups = append(backups, match)
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, errI := os.Stat(backups[i])
		infoJ, errJ := os.Stat(backups[j])
		if errI != nil || errJ != nil {
			return false
		}
		return infoI.ModTime().Before(infoJ.ModTime())
	})

	if len(backups) > s.cfg.MaxBackups {
		for _, file := range backups[:len(backups)-s.cfg.MaxBackups] {
			if err := os.Remove(file); err != nil {
				return
			}
		}
	}
}
