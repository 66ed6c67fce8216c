package handler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/formatter"
	"github.com/driftlog/driftlog/queue"
	"github.com/driftlog/driftlog/sink"
)

// Sync delivers every record on the calling goroutine: format, write,
// flush, return. No queue, no background task, nothing to drain at
// shutdown. It is the right handler when ordering with respect to the
// caller matters more than call-site latency, and it doubles as the
// delivery path the async pipeline degrades to.
type Sync struct {
	snk   sink.Sink
	fmtr  formatter.Formatter
	stats *Stats

	closeOnce sync.Once
	closeErr  error
}

// NewSync builds a synchronous handler and opens its sink. A nil
// formatter means the default text formatter.
func NewSync(snk sink.Sink, fmtr formatter.Formatter) (*Sync, error) {
	if snk == nil {
		return nil, errors.New("handler: nil sink")
	}
	if fmtr == nil {
		fmtr = formatter.NewTextFormatter(formatter.Config{})
	}
	if err := snk.Open(); err != nil {
		return nil, fmt.Errorf("handler: open sink: %w", err)
	}
	return &Sync{snk: snk, fmtr: fmtr, stats: NewStats()}, nil
}

// Handle formats and writes the record, flushing before returning.
func (s *Sync) Handle(record *core.Record) error {
	payload := formatter.Safe(s.fmtr, record)
	if err := s.snk.Write(payload); err != nil {
		return err
	}
	if err := s.snk.Flush(); err != nil {
		return err
	}
	s.stats.IncrementWritten()
	return nil
}

// CanRecycleRecord reports that the record is fully consumed before
// Handle returns.
func (s *Sync) CanRecycleRecord() bool {
	return true
}

// Flush forces buffered sink data out.
func (s *Sync) Flush() error {
	return s.snk.Flush()
}

// Close releases the sink. Idempotent.
func (s *Sync) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.snk.Close()
	})
	return s.closeErr
}

// Stats returns the delivery counters.
func (s *Sync) Stats() Snapshot {
	return s.stats.GetSnapshot(queue.Stats{})
}
