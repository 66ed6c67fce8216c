package sink

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// ConsoleSink writes payloads to a terminal or any io.Writer
// (default: stdout). Console writes are unbuffered; Flush is a no-op
// and Close never closes stdout/stderr.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink. A nil writer means os.Stdout.
func NewConsole(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Open implements Sink.
func (s *ConsoleSink) Open() error { return nil }

// Write implements Sink.
func (s *ConsoleSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

// Flush implements Sink.
func (s *ConsoleSink) Flush() error { return nil }

// Close implements Sink. The underlying writer is left open: closing
// the process's stdout because a log handler shut down would be a
// surprise to everything else writing there.
func (s *ConsoleSink) Close() error { return nil }

// IsTerminal reports whether the sink's writer is an interactive
// terminal. Handlers use it to decide color defaults.
func (s *ConsoleSink) IsTerminal() bool {
	f, ok := s.w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
