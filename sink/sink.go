package sink

import (
	"io"
	"sync"
)

// Sink is the final destination formatted payloads are written to.
// The engine owns exactly one sink per handler; the single writer task
// is the primary writer, with the synchronous fallback path as the
// only other caller. Implementations must therefore be safe for
// concurrent Write/Flush.
type Sink interface {
	// Open acquires the underlying resource. Called once before the
	// first write; failure here is the only per-handler fatal error.
	Open() error

	// Write delivers one formatted payload.
	Write(p []byte) error

	// Flush pushes buffered data down to the resource.
	Flush() error

	// Close flushes and releases the resource. Implementations must
	// tolerate a second Close.
	Close() error
}

// WriterSink adapts any io.Writer into a Sink. It is the simplest
// sink: no buffering, no rotation. A nil writer discards payloads.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a sink around w.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Open implements Sink. An io.Writer needs no acquisition.
func (s *WriterSink) Open() error { return nil }

// Write implements Sink.
func (s *WriterSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	_, err := s.w.Write(p)
	return err
}

// Flush implements Sink.
func (s *WriterSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close implements Sink. It closes the wrapped writer when it is an
// io.Closer, at most once.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		s.w = nil
		return c.Close()
	}
	s.w = nil
	return nil
}
