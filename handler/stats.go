package handler

import (
	"sync/atomic"

	"github.com/driftlog/driftlog/queue"
)

// Stats tracks handler delivery counters. Together with the queue's
// own counters these account for every record handed to a handler:
// written + dropped + recovered is the number of Handle calls.
type Stats struct {
	// written counts payloads delivered through the async writer.
	written atomic.Uint64
	// recovered counts payloads delivered through the synchronous
	// fallback (memory pressure, queue full, pipeline unavailable).
	recovered atomic.Uint64
	// formatFallbacks counts records rendered by the fallback
	// formatter after the configured one failed.
	formatFallbacks atomic.Uint64
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{}
}

// IncrementWritten atomically counts one async delivery
func (s *Stats) IncrementWritten() {
	s.written.Add(1)
}

// IncrementRecovered atomically counts one synchronous fallback delivery
func (s *Stats) IncrementRecovered() {
	s.recovered.Add(1)
}

// IncrementFormatFallbacks atomically counts one formatter fallback
func (s *Stats) IncrementFormatFallbacks() {
	s.formatFallbacks.Add(1)
}

// Written returns the async delivery count
func (s *Stats) Written() uint64 {
	return s.written.Load()
}

// Recovered returns the synchronous fallback delivery count
func (s *Stats) Recovered() uint64 {
	return s.recovered.Load()
}

// FormatFallbacks returns the formatter fallback count
func (s *Stats) FormatFallbacks() uint64 {
	return s.formatFallbacks.Load()
}

// Snapshot is a point-in-time view of a handler's delivery counters
// combined with its queue statistics.
type Snapshot struct {
	Written         uint64
	Recovered       uint64
	Dropped         uint64
	FormatFallbacks uint64
	Queue           queue.Stats
}

// GetSnapshot combines the handler counters with the queue's.
func (s *Stats) GetSnapshot(qs queue.Stats) Snapshot {
	return Snapshot{
		Written:         s.written.Load(),
		Recovered:       s.recovered.Load(),
		Dropped:         qs.Drops,
		FormatFallbacks: s.formatFallbacks.Load(),
		Queue:           qs,
	}
}
